package pickle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// p wraps opcodes in a protocol 2 preamble and STOP.
func p(ops ...byte) []byte {
	stream := []byte{0x80, 0x02}
	stream = append(stream, ops...)
	return append(stream, '.')
}

func TestDecodePrimitives(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		data []byte
		want Value
	}{
		"binint1":          {p('K', 5), int64(5)},
		"binint2":          {p('M', 0x34, 0x12), int64(0x1234)},
		"binint":           {p('J', 0x78, 0x56, 0x34, 0x12), int64(0x12345678)},
		"binint negative":  {p('J', 0xff, 0xff, 0xff, 0xff), int64(-1)},
		"long1":            {p(0x8a, 5, 0x00, 0x00, 0x00, 0x00, 0x01), int64(1 << 32)},
		"long1 empty":      {p(0x8a, 0), int64(0)},
		"short binunicode": {p(0x8c, 2, 'h', 'i'), "hi"},
		"binunicode":       {p('X', 2, 0, 0, 0, 'h', 'i'), "hi"},
		"short binstring":  {p('U', 2, 'h', 'i'), "hi"},
		"short binbytes":   {p('C', 2, 0x01, 0x02), []byte{0x01, 0x02}},
		"empty tuple":      {p(')'), Tuple{}},
		"tuple2":           {p('K', 1, 'K', 2, 0x86), Tuple{int64(1), int64(2)}},
		"tuple3":           {p('K', 1, 'K', 2, 'K', 3, 0x87), Tuple{int64(1), int64(2), int64(3)}},
		"generic tuple":    {p('(', 'K', 1, 'K', 2, 'K', 3, 'K', 4, 't'), Tuple{int64(1), int64(2), int64(3), int64(4)}},
		"empty list":       {p(']'), List{}},
		"list append":      {p(']', 'K', 7, 'a'), List{int64(7)}},
		"list appends":     {p(']', '(', 'K', 1, 'K', 2, 'e'), List{int64(1), int64(2)}},
		"empty dict":       {p('}'), Dict{}},
		"dict setitem":     {p('}', 0x8c, 1, 'k', 'K', 9, 's'), Dict{"k": int64(9)}},
		"dict setitems": {
			p('}', '(', 0x8c, 1, 'a', 'K', 1, 0x8c, 1, 'b', 'K', 2, 'u'),
			Dict{"a": int64(1), "b": int64(2)},
		},
		"bytes dict key": {p('}', 'C', 1, 'k', 'K', 3, 's'), Dict{"k": int64(3)}},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v, err := Decode(tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestDecodeMemo(t *testing.T) {
	t.Parallel()

	t.Run("binput binget", func(t *testing.T) {
		t.Parallel()
		// Store "x" in memo slot 0, build a tuple of two references.
		v, err := Decode(p(0x8c, 1, 'x', 'q', 0, 'h', 0, 0x86))
		require.NoError(t, err)
		assert.Equal(t, Tuple{"x", "x"}, v)
	})

	t.Run("memoize", func(t *testing.T) {
		t.Parallel()
		v, err := Decode(p(0x8c, 1, 'x', 0x94, 'h', 0, 0x86))
		require.NoError(t, err)
		assert.Equal(t, Tuple{"x", "x"}, v)
	})

	t.Run("unset memo key", func(t *testing.T) {
		t.Parallel()
		_, err := Decode(p('h', 9))
		require.Error(t, err)
	})
}

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	// Protocol 4 wraps content in FRAME records; length is advisory.
	data := []byte{0x80, 0x04, 0x95, 4, 0, 0, 0, 0, 0, 0, 0, 'K', 42, '.'}
	v, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestDecodeRejectsObjectConstruction(t *testing.T) {
	t.Parallel()

	// A classic pickle payload shape: GLOBAL os.system + REDUCE. Every
	// object-constructing opcode must fail, not just be skipped.
	forbidden := map[string][]byte{
		"global":       append([]byte{0x80, 0x02, 'c'}, []byte("os\nsystem\n.")...),
		"reduce":       p('R'),
		"build":        p('b'),
		"inst":         p('i'),
		"obj":          p('o'),
		"newobj":       p(0x81),
		"stack global": p(0x93),
		"ext1":         p(0x82, 1),
		"none":         p('N'),
		"persid":       p('P'),
	}
	for name, data := range forbidden {
		data := data
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(data)
			require.ErrorContains(t, err, "not allowed")
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty input":          {},
		"no stop":              {0x80, 0x02, 'K', 1},
		"truncated int":        {0x80, 0x02, 'J', 1, 2},
		"truncated string":     p('X', 10, 0, 0, 0, 'h', 'i'),
		"string len past end":  p('X', 0xff, 0xff, 0xff, 0xff),
		"trailing bytes":       append(p('K', 1), 0x00),
		"stop on empty stack":  {0x80, 0x02, '.'},
		"leftover stack":       p('K', 1, 'K', 2),
		"tuple underflow":      p('K', 1, 0x86),
		"append to non-list":   p('K', 1, 'K', 2, 'a'),
		"setitem on non-dict":  p(']', 'K', 1, 'K', 2, 's'),
		"appends without mark": p(']', 'e'),
		"int dict key":         p('}', 'K', 1, 'K', 2, 's'),
		"future protocol":      {0x80, 0x09, 'K', 1, '.'},
		"invalid utf8":         p(0x8c, 1, 0xff),
	}
	for name, data := range cases {
		data := data
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(data)
			require.Error(t, err)
		})
	}
}
