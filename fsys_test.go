package rpa

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveFS(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, 0xabad1dea, map[string][]byte{
		"gui/window.png": []byte("pixels"),
		"script.rpy":     []byte("scene"),
	})

	t.Run("open and read", func(t *testing.T) {
		t.Parallel()
		f, err := a.Open("gui/window.png")
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, []byte("pixels"), data)

		info, err := f.Stat()
		require.NoError(t, err)
		assert.Equal(t, "window.png", info.Name())
		assert.Equal(t, int64(6), info.Size())
		assert.False(t, info.IsDir())
	})

	t.Run("read at", func(t *testing.T) {
		t.Parallel()
		f, err := a.Open("script.rpy")
		require.NoError(t, err)
		defer f.Close()

		ra, ok := f.(io.ReaderAt)
		require.True(t, ok)
		buf := make([]byte, 3)
		_, err = ra.ReadAt(buf, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte("ene"), buf)
	})

	t.Run("read file", func(t *testing.T) {
		t.Parallel()
		data, err := a.ReadFile("script.rpy")
		require.NoError(t, err)
		assert.Equal(t, []byte("scene"), data)
	})

	t.Run("not exist", func(t *testing.T) {
		t.Parallel()
		_, err := a.Open("gui/missing.png")
		require.ErrorIs(t, err, fs.ErrNotExist)

		_, err = a.ReadFile("gui/missing.png")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("no directory entries", func(t *testing.T) {
		t.Parallel()
		_, err := a.Open("gui")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}
