// Package extract writes archive members to the filesystem.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes members under a destination root with atomic writes.
//
// Content is written to a temporary file in the target directory, then
// renamed into place on Commit. A failed extraction therefore never leaves
// a partially written file at the final path, and re-extracting over an
// existing tree replaces files whole.
type FileSink struct {
	destDir string
}

// NewFileSink creates a FileSink rooted at destDir.
// Parent directories are created automatically as needed.
func NewFileSink(destDir string) *FileSink {
	return &FileSink{destDir: destDir}
}

// Committer receives one member's bytes and finalizes or abandons them.
type Committer interface {
	Write(p []byte) (int, error)
	Commit() error
	Discard() error
}

// Writer returns a Committer for the resolved host path.
// The path must already be validated against the destination root.
func (s *FileSink) Writer(hostPath string) (Committer, error) {
	dir := filepath.Dir(hostPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Temp file in the same directory so the final rename is atomic.
	tempFile, err := os.CreateTemp(dir, ".rpa-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &fileCommitter{
		destPath: hostPath,
		tempFile: tempFile,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	destPath string
	tempFile *os.File
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file and renames it to the final path,
// replacing any existing file.
func (c *fileCommitter) Commit() error {
	tempPath := c.tempFile.Name()

	if err := c.tempFile.Close(); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, c.destPath); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}

	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	tempPath := c.tempFile.Name()
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return os.Remove(tempPath)
}
