package rpa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renkit/rpa/internal/testutil"
)

func TestParseHeader(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		offset, key, err := parseHeader([]byte("RPA-3.0 0000000000000100 1a2b3c4d"))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x100), offset)
		assert.Equal(t, uint32(0x1a2b3c4d), key)
	})

	t.Run("trailing content ignored", func(t *testing.T) {
		t.Parallel()
		offset, key, err := parseHeader([]byte("RPA-3.0 00000000000022b0 cafef00d extra stuff"))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x22b0), offset)
		assert.Equal(t, uint32(0xcafef00d), key)
	})

	invalid := map[string]string{
		"wrong magic":    "ZIP-3.0 0000000000000100 1a2b3c4d",
		"older version":  "RPA-2.0 0000000000000100",
		"missing space":  "RPA-3.0_0000000000000100 1a2b3c4d",
		"truncated line": "RPA-3.0 00000001",
		"offset not hex": "RPA-3.0 00000000000zzz00 1a2b3c4d",
		"key not hex":    "RPA-3.0 0000000000000100 1a2bXXXX",
		"empty line":     "",
	}
	for name, line := range invalid {
		line := line
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, err := parseHeader([]byte(line))
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestReadHeader(t *testing.T) {
	t.Parallel()

	t.Run("from archive", func(t *testing.T) {
		t.Parallel()
		source := testutil.NewSource(testutil.Build(0xfeedface, map[string][]byte{"x.txt": []byte("x")}))
		offset, key, err := readHeader(source)
		require.NoError(t, err)
		assert.Equal(t, uint64(35), offset) // 34-byte header + 1 data byte
		assert.Equal(t, uint32(0xfeedface), key)
	})

	t.Run("no newline", func(t *testing.T) {
		t.Parallel()
		source := testutil.NewSource([]byte("RPA-3.0 0000000000000100 1a2b3c4d"))
		_, _, err := readHeader(source)
		require.ErrorIs(t, err, ErrFormat)
	})

	t.Run("empty source", func(t *testing.T) {
		t.Parallel()
		_, _, err := readHeader(testutil.NewSource(nil))
		require.ErrorIs(t, err, ErrFormat)
	})
}
