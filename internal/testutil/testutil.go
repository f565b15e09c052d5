// Package testutil builds synthetic RPA-3.0 archives for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/renkit/rpa/internal/pickle"
)

// headerLen is the fixed length of the header line the builder writes:
// "RPA-3.0 " + 16 hex chars + space + 8 hex chars + newline.
const headerLen = 34

// Source is an in-memory ByteSource for tests.
type Source struct {
	data []byte
}

// NewSource returns a byte source backed by the provided data.
func NewSource(data []byte) *Source {
	return &Source{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if off+int64(n) >= int64(len(s.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (s *Source) Size() int64 {
	return int64(len(s.data))
}

// Builder assembles a synthetic archive: header line, member data region,
// and a trailing zlib-compressed pickled index.
type Builder struct {
	key   uint32
	data  bytes.Buffer
	index pickle.Dict
}

// NewBuilder creates a Builder using the given obfuscation key.
func NewBuilder(key uint32) *Builder {
	return &Builder{
		key:   key,
		index: pickle.Dict{},
	}
}

// Add appends a member with the given content and records an obfuscated
// (offset, length) 2-tuple for it.
func (b *Builder) Add(name string, content []byte) *Builder {
	offset := uint64(headerLen + b.data.Len())
	b.data.Write(content)
	b.index[name] = pickle.List{pickle.Tuple{
		int64(offset ^ uint64(b.key)),
		int64(uint64(len(content)) ^ uint64(b.key)),
	}}
	return b
}

// AddWithPrefix is like Add but records a 3-tuple carrying prefix bytes.
func (b *Builder) AddWithPrefix(name string, content, prefix []byte) *Builder {
	offset := uint64(headerLen + b.data.Len())
	b.data.Write(content)
	b.index[name] = pickle.List{pickle.Tuple{
		int64(offset ^ uint64(b.key)),
		int64(uint64(len(content)) ^ uint64(b.key)),
		prefix,
	}}
	return b
}

// SetRaw records an arbitrary pickle value for name, encoded verbatim.
// Used to build indexes with shapes the decoder must reject.
func (b *Builder) SetRaw(name string, v pickle.Value) *Builder {
	b.index[name] = v
	return b
}

// Bytes serializes the archive.
func (b *Builder) Bytes() []byte {
	indexOffset := headerLen + b.data.Len()

	var out bytes.Buffer
	fmt.Fprintf(&out, "RPA-3.0 %016x %08x\n", indexOffset, b.key)
	out.Write(b.data.Bytes())

	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(encodePickle(b.index)); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return out.Bytes()
}

// Build is a shorthand for archives of plain members.
func Build(key uint32, members map[string][]byte) []byte {
	b := NewBuilder(key)
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.Add(name, members[name])
	}
	return b.Bytes()
}

// encodePickle writes a protocol 2 pickle stream for the supported value
// types: int64, string, []byte, List, Tuple, Dict.
func encodePickle(v pickle.Value) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x80, 0x02})
	encodeValue(&buf, v)
	buf.WriteByte('.')
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v pickle.Value) {
	switch v := v.(type) {
	case int64:
		encodeInt(buf, v)
	case int:
		encodeInt(buf, int64(v))
	case string:
		buf.WriteByte('X')
		binary.Write(buf, binary.LittleEndian, uint32(len(v))) //nolint:errcheck // bytes.Buffer does not fail
		buf.WriteString(v)
	case []byte:
		if len(v) < 256 {
			buf.WriteByte('C')
			buf.WriteByte(byte(len(v)))
		} else {
			buf.WriteByte('B')
			binary.Write(buf, binary.LittleEndian, uint32(len(v))) //nolint:errcheck // bytes.Buffer does not fail
		}
		buf.Write(v)
	case pickle.List:
		buf.WriteByte(']')
		if len(v) > 0 {
			buf.WriteByte('(')
			for _, item := range v {
				encodeValue(buf, item)
			}
			buf.WriteByte('e')
		}
	case pickle.Tuple:
		switch len(v) {
		case 0:
			buf.WriteByte(')')
		case 1, 2, 3:
			for _, item := range v {
				encodeValue(buf, item)
			}
			buf.WriteByte(byte(0x85 + len(v) - 1))
		default:
			buf.WriteByte('(')
			for _, item := range v {
				encodeValue(buf, item)
			}
			buf.WriteByte('t')
		}
	case pickle.Dict:
		buf.WriteByte('}')
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			encodeValue(buf, key)
			encodeValue(buf, v[key])
			buf.WriteByte('s')
		}
	default:
		panic(fmt.Sprintf("testutil: cannot pickle %T", v))
	}
}

func encodeInt(buf *bytes.Buffer, v int64) {
	if v >= -1<<31 && v < 1<<31 {
		buf.WriteByte('J')
		binary.Write(buf, binary.LittleEndian, int32(v)) //nolint:errcheck // bytes.Buffer does not fail
		return
	}
	// LONG1, little-endian two's complement with a minimal byte count.
	// Only non-negative values this large occur (offsets and lengths).
	u := uint64(v)
	var b [9]byte
	n := 0
	for u > 0 {
		b[n] = byte(u)
		u >>= 8
		n++
	}
	if b[n-1]&0x80 != 0 {
		// Keep the sign bit clear so the value stays positive.
		n++
	}
	buf.WriteByte(0x8a)
	buf.WriteByte(byte(n))
	buf.Write(b[:n])
}
