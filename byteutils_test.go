package mcap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixedStringRoundTrip(t *testing.T) {
	buf := make([]byte, 4+len("hello world"))
	n := putPrefixedString(buf, "hello world")
	require.Equal(t, len(buf), n)

	s, offset, err := getPrefixedString(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello world", s)
	require.Equal(t, len(buf), offset)
}

func TestPrefixedMapDuplicateKeyRejected(t *testing.T) {
	var buf []byte
	buf = append(buf, 0, 0, 0, 0) // placeholder body length, patched below
	body := make([]byte, 0)
	body = appendPrefixedString(body, "k")
	body = appendPrefixedString(body, "v1")
	body = appendPrefixedString(body, "k")
	body = appendPrefixedString(body, "v2")
	putUint32(buf, uint32(len(body)))
	buf = append(buf, body...)

	_, _, err := getPrefixedMap(buf, 0)
	require.Error(t, err)
	require.ErrorAs(t, err, new(*UnexpectedTokenError))
}

func appendPrefixedString(buf []byte, s string) []byte {
	tmp := make([]byte, 4+len(s))
	putPrefixedString(tmp, s)
	return append(buf, tmp...)
}
