// Package pathutil validates and resolves slash-separated member paths.
//
// Member names come out of the archive index and are untrusted: a crafted
// name must never cause a write outside the extraction root.
package pathutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// ErrUnsafe is returned for member names that would resolve outside the
// destination root or are otherwise not clean relative paths.
var ErrUnsafe = errors.New("unsafe member path")

// Validate reports whether name is a clean, relative, slash-separated path
// with no "." or ".." elements and no characters that change meaning on
// the host filesystem.
func Validate(name string) error {
	if name == "." || !fs.ValidPath(name) {
		return ErrUnsafe
	}
	// fs.ValidPath permits backslashes and NULs inside elements; both are
	// path syntax on some hosts.
	if strings.ContainsAny(name, "\\\x00") {
		return ErrUnsafe
	}
	return nil
}

// Resolve joins a validated member name onto the destination root using
// host path separators.
func Resolve(destDir, name string) (string, error) {
	if err := Validate(name); err != nil {
		return "", err
	}
	return filepath.Join(destDir, filepath.FromSlash(name)), nil
}
