package rpa

import (
	"bytes"
	"io/fs"
	"path"
	"time"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
)

// Open implements fs.FS over member names. Only members can be opened;
// the archive carries no directory entries to synthesize.
func (a *Archive) Open(name string) (fs.File, error) {
	seg, ok := a.table[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	data, err := a.readSegment(name, seg)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memberFile{
		reader: bytes.NewReader(data),
		info:   memberInfo{name: name, size: int64(len(data))},
	}, nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	seg, ok := a.table[name]
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	data, err := a.readSegment(name, seg)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// memberFile is an open archive member backed by its decoded bytes.
type memberFile struct {
	reader *bytes.Reader
	info   memberInfo
}

func (f *memberFile) Read(p []byte) (int, error) { return f.reader.Read(p) }

func (f *memberFile) ReadAt(p []byte, off int64) (int, error) { return f.reader.ReadAt(p, off) }

func (f *memberFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *memberFile) Close() error { return nil }

// memberInfo implements fs.FileInfo for a member.
type memberInfo struct {
	name string
	size int64
}

func (i memberInfo) Name() string { return path.Base(i.name) }

func (i memberInfo) Size() int64 { return i.size }

func (i memberInfo) Mode() fs.FileMode { return 0o444 }

func (i memberInfo) ModTime() time.Time { return time.Time{} }

func (i memberInfo) IsDir() bool { return false }

func (i memberInfo) Sys() any { return nil }
