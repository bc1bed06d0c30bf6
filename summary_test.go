package mcap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSummaryNoFallbackScan(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64, Compression: CompressionZSTD})
	info, err := LoadSummary(bytes.NewReader(data), NoFallbackScan)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), info.Statistics.MessageCount)
	assert.Len(t, info.Channels, 2)
	assert.True(t, info.CanReadMessagesUsingIndex())
}

func TestLoadSummaryForceScanReconstructsStatistics(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64, Compression: CompressionLZ4})
	info, err := LoadSummary(bytes.NewReader(data), ForceScan)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), info.Statistics.MessageCount)
	assert.Equal(t, uint64(1), info.Statistics.AttachmentCount)
	assert.Empty(t, info.ChunkIndexes, "a scanned file cannot recover chunk byte offsets")
}

func TestLoadSummaryAllowFallbackUsesFooterWhenPresent(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64})
	info, err := LoadSummary(bytes.NewReader(data), AllowFallbackScan)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ChunkIndexes)
}
