package rpa

import (
	"fmt"

	"golang.org/x/exp/mmap"
)

// mmapSource adapts mmap.ReaderAt to ByteSource.
// mmap.ReaderAt has ReadAt but reports length as int, so wrap Len.
type mmapSource struct {
	r *mmap.ReaderAt
}

// ReadAt implements io.ReaderAt.
func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	return m.r.ReadAt(p, off)
}

// Size returns the total size of the mapped file.
func (m *mmapSource) Size() int64 {
	return int64(m.r.Len())
}

// File wraps an Archive with its underlying memory mapping.
// Close must be called to release the mapping.
type File struct {
	*Archive
	r *mmap.ReaderAt
}

// Close releases the memory mapping.
func (f *File) Close() error {
	if f.r == nil {
		return nil
	}
	err := f.r.Close()
	f.r = nil
	return err
}

// Open memory-maps an archive file read-only and decodes its index.
//
// The returned File must be closed to release the mapping. The mapping is
// never written to; member reads are pure functions of the mapped bytes,
// so the File is safe for concurrent use.
func Open(path string, opts ...Option) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rpa: open %s: %w", path, err)
	}

	a, err := New(&mmapSource{r: r}, opts...)
	if err != nil {
		r.Close()
		return nil, err
	}

	return &File{
		Archive: a,
		r:       r,
	}, nil
}

// Interface compliance for mmapSource.
var _ ByteSource = (*mmapSource)(nil)
