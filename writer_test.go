package mcap

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, opts *WriterOptions) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, opts)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(&Header{Profile: "test", Library: "mylib"}))
	require.NoError(t, w.WriteSchema(&Schema{ID: 1, Name: "int", Encoding: "raw", Data: []byte{1}}))
	require.NoError(t, w.WriteChannel(&Channel{ID: 1, SchemaID: 1, Topic: "/ints", MessageEncoding: "raw"}))
	require.NoError(t, w.WriteChannel(&Channel{ID: 2, SchemaID: 0, Topic: "/empty", MessageEncoding: "raw"}))
	for i := uint64(0); i < 10; i++ {
		require.NoError(t, w.WriteMessage(&Message{
			ChannelID:   1,
			Sequence:    uint32(i),
			LogTime:     i,
			PublishTime: i,
			Data:        []byte{byte(i)},
		}))
	}
	require.NoError(t, w.WriteAttachment(&Attachment{
		LogTime:     5,
		CreateTime:  5,
		Name:        "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	}))
	require.NoError(t, w.WriteMetadata(&Metadata{Name: "run", Metadata: map[string]string{"a": "1"}}))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestWriterProducesValidMagicAndHeader(t *testing.T) {
	data := writeFixture(t, &WriterOptions{})
	assert.True(t, bytes.HasPrefix(data, Magic))
	assert.True(t, bytes.HasSuffix(data, Magic))
}

func TestWriterUnchunkedRoundTrip(t *testing.T) {
	data := writeFixture(t, &WriterOptions{})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	it, err := r.Messages(UsingIndex(false), InOrder(FileOrder))
	require.NoError(t, err)
	var count int
	for {
		_, channel, msg, err := it.Next()
		if err != nil {
			break
		}
		require.Equal(t, "/ints", channel.Topic)
		require.Equal(t, count, int(msg.LogTime))
		count++
	}
	assert.Equal(t, 10, count)
}

func TestWriterChunkedRoundTripIndexed(t *testing.T) {
	data := writeFixture(t, &WriterOptions{
		Chunked:     true,
		ChunkSize:   64,
		Compression: CompressionZSTD,
		IncludeCRC:  true,
	})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	info, err := r.Info(NoFallbackScan)
	require.NoError(t, err)
	require.NotEmpty(t, info.ChunkIndexes)
	assert.Equal(t, uint64(10), info.Statistics.MessageCount)

	it, err := r.Messages(InOrder(LogTimeOrder))
	require.NoError(t, err)
	var times []uint64
	for {
		_, _, msg, err := it.Next()
		if err != nil {
			break
		}
		times = append(times, msg.LogTime)
	}
	require.Len(t, times, 10)
	for i, tm := range times {
		assert.Equal(t, uint64(i), tm)
	}
}

func TestWriterRejectsUnknownChannel(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, &WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(&Header{}))
	err = w.WriteMessage(&Message{ChannelID: 99, Data: []byte{0}})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestWriterRejectsUnknownSchema(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, &WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(&Header{}))
	err = w.WriteChannel(&Channel{ID: 1, SchemaID: 7, Topic: "/x"})
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestWriterTopicFilter(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64, Compression: CompressionLZ4})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithTopics([]string{"/empty"}))
	require.NoError(t, err)
	_, _, _, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
}
