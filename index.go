package rpa

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/renkit/rpa/internal/pickle"
)

// decodeIndex reads the trailing compressed index block, decodes it, and
// builds the validated member table.
//
// The decompressed pickle stream is a dict mapping member names to a
// single-element list holding a (offset, length) or (offset, length,
// prefix) tuple, with offset and length XOR-obfuscated against key.
func decodeIndex(source ByteSource, indexOffset uint64, key uint32, maxIndexSize uint64) (map[string]Segment, []string, error) {
	raw, err := readIndexBytes(source, indexOffset, maxIndexSize)
	if err != nil {
		return nil, nil, err
	}

	root, err := pickle.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	dict, ok := root.(pickle.Dict)
	if !ok {
		return nil, nil, fmt.Errorf("%w: index is %T, not a mapping", ErrCorruptIndex, root)
	}

	archiveSize := uint64(source.Size())
	table := make(map[string]Segment, len(dict))
	names := make([]string, 0, len(dict))
	for name, v := range dict {
		seg, err := decodeEntry(name, v, key)
		if err != nil {
			return nil, nil, err
		}
		if seg.Offset+seg.Length < seg.Offset || seg.Offset+seg.Length > archiveSize {
			return nil, nil, fmt.Errorf("%w: %s: segment [%d, +%d) beyond archive end %d",
				ErrCorruptIndex, name, seg.Offset, seg.Length, archiveSize)
		}
		table[name] = seg
		names = append(names, name)
	}
	sort.Strings(names)

	return table, names, nil
}

// readIndexBytes reads [indexOffset, EOF) and zlib-decompresses it.
func readIndexBytes(source ByteSource, indexOffset, maxIndexSize uint64) ([]byte, error) {
	size := source.Size()
	if indexOffset >= uint64(size) {
		return nil, fmt.Errorf("%w: index offset %d beyond archive size %d", ErrCorruptIndex, indexOffset, size)
	}

	compressed := make([]byte, size-int64(indexOffset))
	if _, err := io.ReadFull(io.NewSectionReader(source, int64(indexOffset), int64(len(compressed))), compressed); err != nil {
		return nil, fmt.Errorf("%w: reading index block: %v", ErrCorruptIndex, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	defer zr.Close()

	var limit io.Reader = zr
	if maxIndexSize > 0 {
		limit = io.LimitReader(zr, int64(maxIndexSize)+1)
	}
	raw, err := io.ReadAll(limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if maxIndexSize > 0 && uint64(len(raw)) > maxIndexSize {
		return nil, fmt.Errorf("%w: index exceeds %d bytes", ErrSizeLimit, maxIndexSize)
	}
	return raw, nil
}

// decodeEntry validates one raw index value and deobfuscates it into a
// Segment.
//
// The list wrapper nominally allows several segments per member, but no
// known producer writes more than one; multi-segment entries and non-empty
// prefixes are refused rather than guessed at.
func decodeEntry(name string, v pickle.Value, key uint32) (Segment, error) {
	list, ok := v.(pickle.List)
	if !ok {
		return Segment{}, fmt.Errorf("%w: %s: entry is %T, not a list", ErrCorruptIndex, name, v)
	}
	if len(list) == 0 {
		return Segment{}, fmt.Errorf("%w: %s: empty segment list", ErrCorruptIndex, name)
	}
	if len(list) > 1 {
		return Segment{}, fmt.Errorf("%w: %s: %d segments", ErrStructure, name, len(list))
	}

	tup, ok := list[0].(pickle.Tuple)
	if !ok {
		return Segment{}, fmt.Errorf("%w: %s: segment is %T, not a tuple", ErrCorruptIndex, name, list[0])
	}
	if len(tup) != 2 && len(tup) != 3 {
		return Segment{}, fmt.Errorf("%w: %s: %d-element segment tuple", ErrCorruptIndex, name, len(tup))
	}

	offset, err := segmentInt(name, "offset", tup[0])
	if err != nil {
		return Segment{}, err
	}
	length, err := segmentInt(name, "length", tup[1])
	if err != nil {
		return Segment{}, err
	}

	var prefix []byte
	if len(tup) == 3 {
		switch p := tup[2].(type) {
		case string:
			prefix = []byte(p)
		case []byte:
			prefix = p
		default:
			return Segment{}, fmt.Errorf("%w: %s: prefix is %T", ErrCorruptIndex, name, tup[2])
		}
	}
	if len(prefix) > 0 {
		// Prepend semantics for stored prefixes are unverified; refuse
		// rather than risk mis-extracting.
		return Segment{}, fmt.Errorf("%w: %s: non-empty segment prefix (%d bytes)", ErrStructure, name, len(prefix))
	}

	return Segment{
		Offset: offset ^ uint64(key),
		Length: length ^ uint64(key),
		Prefix: prefix,
	}, nil
}

// segmentInt coerces a raw obfuscated offset/length field.
func segmentInt(name, field string, v pickle.Value) (uint64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %s: %s is %T, not an integer", ErrCorruptIndex, name, field, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s: negative %s", ErrCorruptIndex, name, field)
	}
	return uint64(n), nil
}
