// Package rpa reads Ren'Py RPA-3.0 archives.
//
// An archive is a single file holding named member blobs plus a trailing
// zlib-compressed, pickle-serialized index. Stored offsets and lengths are
// obfuscated with a 32-bit XOR key declared in the header line. The index
// is decoded once at open time with a strict schema-bound pickle reader;
// general pickle object construction is never performed.
//
// The package implements fs.FS and related interfaces for stdlib
// compatibility.
package rpa

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors.
var (
	// ErrFormat is returned when the archive header is missing or malformed.
	ErrFormat = errors.New("rpa: invalid archive header")

	// ErrCorruptIndex is returned when the index fails to decompress or
	// does not decode to the expected name-to-segment mapping.
	ErrCorruptIndex = errors.New("rpa: corrupt index")

	// ErrStructure is returned when an index entry is well-formed but uses
	// a shape this package refuses to extract (multiple segments per
	// member, or a non-empty segment prefix).
	ErrStructure = errors.New("rpa: unsupported index structure")

	// ErrNotFound is returned when a member name is not in the archive.
	ErrNotFound = errors.New("rpa: member not found")

	// ErrPathEscape is returned when a member name would resolve outside
	// the extraction destination.
	ErrPathEscape = errors.New("rpa: member path escapes destination")

	// ErrSizeLimit is returned when the index or a member exceeds a
	// configured size limit.
	ErrSizeLimit = errors.New("rpa: size limit exceeded")
)

// DefaultMaxIndexSize caps the decompressed index size. Indexes for even
// very large archives stay well under this.
const DefaultMaxIndexSize = 50 << 20 // 50 MiB

// ByteSource provides random access to the raw archive bytes.
//
// Implementations exist for memory-mapped files (see Open) and in-memory
// buffers. Reads must be safe for concurrent use.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Segment describes where a member's bytes live in the archive.
//
// Prefix bytes, when present, are logically prepended to the bytes at
// [Offset, Offset+Length). Every producer observed so far writes an empty
// prefix; archives carrying a non-empty one are refused at open time.
type Segment struct {
	Offset uint64
	Length uint64
	Prefix []byte
}

// Entry describes one member of the archive.
type Entry struct {
	// Name is the member path relative to the archive root, slash-separated.
	Name string

	// Size is the total member size in bytes, prefix included.
	Size uint64
}

// Archive provides random access to the members of an RPA-3.0 archive.
//
// The member table is decoded and validated once at construction and is
// immutable afterward, so an Archive is safe for concurrent use.
type Archive struct {
	source      ByteSource
	indexOffset uint64
	key         uint32

	table map[string]Segment
	names []string // sorted

	maxIndexSize  uint64
	maxMemberSize uint64
	logger        *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.logger
}

// New creates an Archive over source.
//
// New reads the header line, decompresses and decodes the trailing index,
// deobfuscates every offset and length against the header key, and
// validates the resulting table. The source is retained and must stay
// readable for the lifetime of the Archive.
func New(source ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{
		source:       source,
		maxIndexSize: DefaultMaxIndexSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	indexOffset, key, err := readHeader(source)
	if err != nil {
		return nil, err
	}
	a.indexOffset = indexOffset
	a.key = key

	table, names, err := decodeIndex(source, indexOffset, key, a.maxIndexSize)
	if err != nil {
		return nil, err
	}
	a.table = table
	a.names = names

	a.log().Debug("archive opened",
		"members", len(names),
		"index_offset", indexOffset)
	return a, nil
}

// Len returns the number of members in the archive.
func (a *Archive) Len() int {
	return len(a.names)
}

// Names returns the member names in sorted order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.names))
	copy(names, a.names)
	return names
}

// Entries returns metadata for every member in sorted name order.
func (a *Archive) Entries() []Entry {
	entries := make([]Entry, 0, len(a.names))
	for _, name := range a.names {
		seg := a.table[name]
		entries = append(entries, Entry{
			Name: name,
			Size: seg.Length + uint64(len(seg.Prefix)),
		})
	}
	return entries
}

// Stat returns metadata for a single member.
func (a *Archive) Stat(name string) (Entry, error) {
	seg, ok := a.table[name]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return Entry{Name: name, Size: seg.Length + uint64(len(seg.Prefix))}, nil
}
