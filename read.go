package rpa

import (
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// Read returns the full content of a member: its prefix (always empty in
// validated archives) followed by the bytes at the segment's range.
//
// The result is a fresh allocation sized exactly to the member; the
// archive bytes are read once with no intermediate copies.
func (a *Archive) Read(name string) ([]byte, error) {
	seg, ok := a.table[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return a.readSegment(name, seg)
}

func (a *Archive) readSegment(name string, seg Segment) ([]byte, error) {
	total := seg.Length + uint64(len(seg.Prefix))
	if a.maxMemberSize > 0 && total > a.maxMemberSize {
		return nil, fmt.Errorf("%s: member is %d bytes: %w", name, total, ErrSizeLimit)
	}

	buf := make([]byte, total)
	copy(buf, seg.Prefix)
	if seg.Length == 0 {
		return buf, nil
	}

	n, err := a.source.ReadAt(buf[len(seg.Prefix):], int64(seg.Offset))
	if uint64(n) == seg.Length {
		// Reading up to EOF reports io.EOF alongside a full read.
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("rpa: reading member %s at offset %d: %w", name, seg.Offset, err)
}

// Digest returns the canonical (sha256) digest of a member's content.
func (a *Archive) Digest(name string) (digest.Digest, error) {
	data, err := a.Read(name)
	if err != nil {
		return "", err
	}
	return digest.FromBytes(data), nil
}
