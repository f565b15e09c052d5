// Package pickle decodes the subset of Python's pickle format that RPA
// archive indexes use.
//
// A full pickle implementation can construct arbitrary types while
// decoding, which makes it unusable on untrusted input. This decoder
// reconstructs only primitive values (ints, strings, byte strings) and the
// dict/list/tuple containers they sit in. Every object-constructing opcode
// (GLOBAL, REDUCE, BUILD, NEWOBJ, ...) is rejected outright.
package pickle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Value is one decoded pickle value: int64, string, []byte, List, Tuple,
// or Dict.
type Value any

// List is a decoded Python list.
type List []Value

// Tuple is a decoded Python tuple.
type Tuple []Value

// Dict is a decoded Python dict. Keys are restricted to strings; byte
// string keys are converted.
type Dict map[string]Value

// ErrTruncated is returned when the input ends mid-value.
var ErrTruncated = errors.New("pickle: truncated input")

// Opcodes understood by the decoder. Values are from the CPython pickle
// module; names kept for cross-reference.
const (
	opProto           = 0x80
	opFrame           = 0x95
	opStop            = '.'
	opMark            = '('
	opEmptyDict       = '}'
	opEmptyList       = ']'
	opEmptyTuple      = ')'
	opBinInt          = 'J'
	opBinInt1         = 'K'
	opBinInt2         = 'M'
	opLong1           = 0x8a
	opShortBinString  = 'U'
	opBinString       = 'T'
	opBinUnicode      = 'X'
	opShortBinUnicode = 0x8c
	opBinUnicode8     = 0x8d
	opShortBinBytes   = 'C'
	opBinBytes        = 'B'
	opBinBytes8       = 0x8e
	opTuple           = 't'
	opTuple1          = 0x85
	opTuple2          = 0x86
	opTuple3          = 0x87
	opAppend          = 'a'
	opAppends         = 'e'
	opSetItem         = 's'
	opSetItems        = 'u'
	opBinPut          = 'q'
	opLongBinPut      = 'r'
	opMemoize         = 0x94
	opBinGet          = 'h'
	opLongBinGet      = 'j'
)

// maxProto is the highest pickle protocol version accepted.
const maxProto = 5

type decoder struct {
	data  []byte
	pos   int
	stack []Value
	marks []int
	memo  map[uint32]Value
}

// Decode decodes a single pickled value.
//
// Trailing bytes after the STOP opcode are rejected: the index is the last
// thing in an archive, so anything after it is garbage.
func Decode(data []byte) (Value, error) {
	d := &decoder{
		data: data,
		memo: make(map[uint32]Value),
	}
	v, err := d.run()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("pickle: %d trailing bytes after STOP", len(d.data)-d.pos)
	}
	return v, nil
}

//nolint:gocyclo // one case per opcode
func (d *decoder) run() (Value, error) {
	for {
		op, err := d.byte()
		if err != nil {
			return nil, err
		}

		switch op {
		case opProto:
			ver, err := d.byte()
			if err != nil {
				return nil, err
			}
			if ver > maxProto {
				return nil, fmt.Errorf("pickle: unsupported protocol %d", ver)
			}

		case opFrame:
			// Frame length is advisory; content follows inline.
			if _, err := d.bytes(8); err != nil {
				return nil, err
			}

		case opStop:
			v, err := d.pop()
			if err != nil {
				return nil, err
			}
			if len(d.stack) != 0 || len(d.marks) != 0 {
				return nil, errors.New("pickle: leftover stack values at STOP")
			}
			return v, nil

		case opMark:
			d.marks = append(d.marks, len(d.stack))

		case opEmptyDict:
			d.push(Dict{})
		case opEmptyList:
			d.push(List{})
		case opEmptyTuple:
			d.push(Tuple{})

		case opBinInt:
			b, err := d.bytes(4)
			if err != nil {
				return nil, err
			}
			d.push(int64(int32(binary.LittleEndian.Uint32(b))))
		case opBinInt1:
			b, err := d.byte()
			if err != nil {
				return nil, err
			}
			d.push(int64(b))
		case opBinInt2:
			b, err := d.bytes(2)
			if err != nil {
				return nil, err
			}
			d.push(int64(binary.LittleEndian.Uint16(b)))
		case opLong1:
			if err := d.long1(); err != nil {
				return nil, err
			}

		case opShortBinString, opShortBinUnicode:
			n, err := d.byte()
			if err != nil {
				return nil, err
			}
			if err := d.pushString(int(n), op == opShortBinUnicode); err != nil {
				return nil, err
			}
		case opBinString, opBinUnicode:
			n, err := d.length4()
			if err != nil {
				return nil, err
			}
			if err := d.pushString(n, op == opBinUnicode); err != nil {
				return nil, err
			}
		case opBinUnicode8:
			n, err := d.length8()
			if err != nil {
				return nil, err
			}
			if err := d.pushString(n, true); err != nil {
				return nil, err
			}

		case opShortBinBytes:
			n, err := d.byte()
			if err != nil {
				return nil, err
			}
			if err := d.pushBytes(int(n)); err != nil {
				return nil, err
			}
		case opBinBytes:
			n, err := d.length4()
			if err != nil {
				return nil, err
			}
			if err := d.pushBytes(n); err != nil {
				return nil, err
			}
		case opBinBytes8:
			n, err := d.length8()
			if err != nil {
				return nil, err
			}
			if err := d.pushBytes(n); err != nil {
				return nil, err
			}

		case opTuple1, opTuple2, opTuple3:
			n := int(op-opTuple1) + 1
			if len(d.stack) < n {
				return nil, errors.New("pickle: stack underflow building tuple")
			}
			tup := make(Tuple, n)
			copy(tup, d.stack[len(d.stack)-n:])
			d.stack = d.stack[:len(d.stack)-n]
			d.push(tup)
		case opTuple:
			items, err := d.popMark()
			if err != nil {
				return nil, err
			}
			d.push(Tuple(items))

		case opAppend:
			v, err := d.pop()
			if err != nil {
				return nil, err
			}
			if err := d.appendItems(v); err != nil {
				return nil, err
			}
		case opAppends:
			items, err := d.popMark()
			if err != nil {
				return nil, err
			}
			if err := d.appendItems(items...); err != nil {
				return nil, err
			}

		case opSetItem:
			if err := d.setItems(2); err != nil {
				return nil, err
			}
		case opSetItems:
			items, err := d.popMark()
			if err != nil {
				return nil, err
			}
			d.stack = append(d.stack, items...)
			if err := d.setItems(len(items)); err != nil {
				return nil, err
			}

		case opBinPut:
			k, err := d.byte()
			if err != nil {
				return nil, err
			}
			if err := d.memoize(uint32(k)); err != nil {
				return nil, err
			}
		case opLongBinPut:
			b, err := d.bytes(4)
			if err != nil {
				return nil, err
			}
			if err := d.memoize(binary.LittleEndian.Uint32(b)); err != nil {
				return nil, err
			}
		case opMemoize:
			if err := d.memoize(uint32(len(d.memo))); err != nil {
				return nil, err
			}

		case opBinGet:
			k, err := d.byte()
			if err != nil {
				return nil, err
			}
			if err := d.pushMemo(uint32(k)); err != nil {
				return nil, err
			}
		case opLongBinGet:
			b, err := d.bytes(4)
			if err != nil {
				return nil, err
			}
			if err := d.pushMemo(binary.LittleEndian.Uint32(b)); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("pickle: opcode 0x%02x not allowed", op)
		}
	}
}

// long1 decodes a LONG1 value: a little-endian two's-complement integer of
// up to 8 bytes. Longer encodings never appear in archive indexes.
func (d *decoder) long1() error {
	n, err := d.byte()
	if err != nil {
		return err
	}
	if n > 8 {
		return fmt.Errorf("pickle: LONG1 of %d bytes exceeds int64", n)
	}
	b, err := d.bytes(int(n))
	if err != nil {
		return err
	}
	var v int64
	for i := int(n) - 1; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	if n > 0 && b[n-1]&0x80 != 0 {
		v -= 1 << (8 * uint(n))
	}
	d.push(v)
	return nil
}

func (d *decoder) pushString(n int, unicode bool) error {
	b, err := d.bytes(n)
	if err != nil {
		return err
	}
	if unicode && !utf8.Valid(b) {
		return errors.New("pickle: invalid UTF-8 in unicode string")
	}
	d.push(string(b))
	return nil
}

func (d *decoder) pushBytes(n int) error {
	b, err := d.bytes(n)
	if err != nil {
		return err
	}
	// Copy out so decoded values do not alias the input buffer.
	d.push(append([]byte(nil), b...))
	return nil
}

// appendItems extends the list below the pushed items.
func (d *decoder) appendItems(items ...Value) error {
	if len(d.stack) == 0 {
		return errors.New("pickle: APPEND with empty stack")
	}
	list, ok := d.stack[len(d.stack)-1].(List)
	if !ok {
		return fmt.Errorf("pickle: APPEND onto %T", d.stack[len(d.stack)-1])
	}
	d.stack[len(d.stack)-1] = append(list, items...)
	return nil
}

// setItems pops n stack values (key/value pairs) into the dict below them.
func (d *decoder) setItems(n int) error {
	if n%2 != 0 {
		return errors.New("pickle: odd number of SETITEMS values")
	}
	if len(d.stack) < n+1 {
		return errors.New("pickle: stack underflow in SETITEM")
	}
	dict, ok := d.stack[len(d.stack)-n-1].(Dict)
	if !ok {
		return fmt.Errorf("pickle: SETITEM onto %T", d.stack[len(d.stack)-n-1])
	}
	pairs := d.stack[len(d.stack)-n:]
	for i := 0; i < len(pairs); i += 2 {
		key, err := dictKey(pairs[i])
		if err != nil {
			return err
		}
		dict[key] = pairs[i+1]
	}
	d.stack = d.stack[:len(d.stack)-n]
	return nil
}

// dictKey coerces a decoded value into a dict key.
func dictKey(v Value) (string, error) {
	switch key := v.(type) {
	case string:
		return key, nil
	case []byte:
		return string(key), nil
	default:
		return "", fmt.Errorf("pickle: dict key of type %T not allowed", v)
	}
}

func (d *decoder) memoize(key uint32) error {
	if len(d.stack) == 0 {
		return errors.New("pickle: memo put with empty stack")
	}
	d.memo[key] = d.stack[len(d.stack)-1]
	return nil
}

func (d *decoder) pushMemo(key uint32) error {
	v, ok := d.memo[key]
	if !ok {
		return fmt.Errorf("pickle: memo key %d not set", key)
	}
	d.push(v)
	return nil
}

func (d *decoder) push(v Value) {
	d.stack = append(d.stack, v)
}

func (d *decoder) pop() (Value, error) {
	if len(d.stack) == 0 {
		return nil, errors.New("pickle: stack underflow")
	}
	v := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return v, nil
}

// popMark pops every value pushed since the most recent MARK.
func (d *decoder) popMark() ([]Value, error) {
	if len(d.marks) == 0 {
		return nil, errors.New("pickle: no MARK on stack")
	}
	mark := d.marks[len(d.marks)-1]
	d.marks = d.marks[:len(d.marks)-1]
	items := make([]Value, len(d.stack)-mark)
	copy(items, d.stack[mark:])
	d.stack = d.stack[:mark]
	return items, nil
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrTruncated
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) || d.pos+n < d.pos {
		return nil, ErrTruncated
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) length4() (int, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint32(b)
	if int64(n) > int64(len(d.data)) {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (d *decoder) length8() (int, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint64(b)
	if n > uint64(len(d.data)) {
		return 0, ErrTruncated
	}
	return int(n), nil
}
