package rpa

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Header layout, byte-exact:
//
//	RPA-3.0 <16 hex chars: index offset> <8 hex chars: XOR key>...\n
const (
	headerMagic = "RPA-3.0 "

	headerOffsetStart = 8
	headerOffsetEnd   = 24
	headerKeyStart    = 25
	headerKeyEnd      = 33

	// headerProbe bounds the read for the header line. The fixed fields
	// end at byte 33; anything past that up to the newline is ignored.
	headerProbe = 256
)

// readHeader reads and parses the archive's first line.
func readHeader(source ByteSource) (indexOffset uint64, key uint32, err error) {
	n := int64(headerProbe)
	if size := source.Size(); size < n {
		n = size
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(source, 0, n), buf); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return 0, 0, fmt.Errorf("%w: header line not terminated", ErrFormat)
	}
	return parseHeader(buf[:nl])
}

// parseHeader parses a header line (without the trailing newline) into the
// index offset and obfuscation key.
func parseHeader(line []byte) (indexOffset uint64, key uint32, err error) {
	if len(line) < headerKeyEnd || !bytes.HasPrefix(line, []byte(headerMagic)) {
		return 0, 0, fmt.Errorf("%w: %q", ErrFormat, truncate(line, 40))
	}

	indexOffset, err = strconv.ParseUint(string(line[headerOffsetStart:headerOffsetEnd]), 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad index offset: %v", ErrFormat, err)
	}

	k, err := strconv.ParseUint(string(line[headerKeyStart:headerKeyEnd]), 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad key: %v", ErrFormat, err)
	}

	return indexOffset, uint32(k), nil
}

// truncate shortens raw header bytes for error messages.
func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
