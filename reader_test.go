package mcap

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderHeader(t *testing.T) {
	data := writeFixture(t, &WriterOptions{})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	h, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, "test", h.Profile)
	assert.Contains(t, h.Library, "mylib")
	assert.Contains(t, h.Library, "mcap go #")
}

func TestReaderAttachmentsStreamAndVerify(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	info, err := r.Info(NoFallbackScan)
	require.NoError(t, err)
	readers, err := r.Attachments(info)
	require.NoError(t, err)
	require.Len(t, readers, 1)

	body, err := io.ReadAll(readers[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.NoError(t, readers[0].Verify())
}

func TestReaderContentIteratorYieldsAllKinds(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	info, err := r.Info(NoFallbackScan)
	require.NoError(t, err)

	it, err := NewContentIterator(r, info)
	require.NoError(t, err)

	var messages, attachments, metadata int
	err = Range(it, func(rec ContentRecord) error {
		switch rec.(type) {
		case *ResolvedMessage:
			messages++
		case *AttachmentReader:
			attachments++
		case *Metadata:
			metadata++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, messages)
	assert.Equal(t, 1, attachments)
	assert.Equal(t, 1, metadata)
}
