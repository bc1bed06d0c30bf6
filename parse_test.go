package mcap

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

func crc32Of(b []byte) uint32 { return crc32.ChecksumIEEE(b) }

func TestParseHeader(t *testing.T) {
	buf := make([]byte, 4+3+4+3)
	o := putPrefixedString(buf, "abc")
	putPrefixedString(buf[o:], "def")
	h, err := ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, "abc", h.Profile)
	require.Equal(t, "def", h.Library)
}

func TestParseMessageIndex(t *testing.T) {
	body := make([]byte, 2+4+32)
	o := putUint16(body, 7)
	o += putUint32(body[o:], 32)
	for i := 0; i < 2; i++ {
		o += putUint64(body[o:], uint64(i*10))
		o += putUint64(body[o:], uint64(i*100))
	}
	idx, err := ParseMessageIndex(body)
	require.NoError(t, err)
	require.Equal(t, uint16(7), idx.ChannelID)
	require.Len(t, idx.Records, 2)
	require.Equal(t, uint64(10), idx.Records[1].Timestamp)
	require.Equal(t, uint64(100), idx.Records[1].Offset)
}

func TestParseAttachmentRoundTrip(t *testing.T) {
	buf := &bufBuilder{}
	buf.u64(1)
	buf.u64(2)
	buf.str("a.bin")
	buf.str("application/octet-stream")
	data := []byte("payload")
	buf.u64(uint64(len(data)))
	buf.bytes(data)
	crc := crc32Of(buf.b)
	buf.u32(crc)

	a, err := ParseAttachment(buf.b)
	require.NoError(t, err)
	require.Equal(t, "a.bin", a.Name)
	require.Equal(t, data, a.Data)
}

// bufBuilder is a tiny append-only byte builder for assembling raw record
// bodies in tests without hand-computing offsets.
type bufBuilder struct{ b []byte }

func (t *bufBuilder) u64(x uint64) {
	buf := make([]byte, 8)
	putUint64(buf, x)
	t.b = append(t.b, buf...)
}

func (t *bufBuilder) u32(x uint32) {
	buf := make([]byte, 4)
	putUint32(buf, x)
	t.b = append(t.b, buf...)
}

func (t *bufBuilder) str(s string) {
	buf := make([]byte, 4+len(s))
	putPrefixedString(buf, s)
	t.b = append(t.b, buf...)
}

func (t *bufBuilder) bytes(b []byte) {
	t.b = append(t.b, b...)
}
