package mcap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConformanceAcrossCompressionFormats writes and reads back the same
// fixture under every compression format the engine supports, checking
// that all ten messages come back on their channel in non-decreasing
// log-time order regardless of codec. Adapted from the shape of the teacher's cross-language
// conformance suite (go/conformance), narrowed to this package's own
// writer/reader instead of comparing against other language
// implementations.
func TestConformanceAcrossCompressionFormats(t *testing.T) {
	for _, format := range []CompressionFormat{CompressionNone, CompressionLZ4, CompressionZSTD} {
		format := format
		t.Run(string(format)+"-or-none", func(t *testing.T) {
			data := writeFixture(t, &WriterOptions{
				Chunked:     true,
				ChunkSize:   48,
				Compression: format,
				IncludeCRC:  true,
			})
			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			it, err := r.Messages()
			require.NoError(t, err)
			var last uint64
			var n int
			for {
				_, channel, msg, err := it.Next()
				if err != nil {
					break
				}
				if n > 0 {
					assert.GreaterOrEqual(t, msg.LogTime, last)
				}
				assert.Equal(t, "/ints", channel.Topic)
				last = msg.LogTime
				n++
			}
			assert.Equal(t, 10, n)
		})
	}
}

// TestConformanceSummaryAgreesWithScan checks that NoFallbackScan and
// ForceScan report the same message statistics for a well-formed file,
// which should always hold even though they arrive at the answer by very
// different means (trusting the footer vs. decoding every record).
func TestConformanceSummaryAgreesWithScan(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 48, Compression: CompressionZSTD})
	fromFooter, err := LoadSummary(bytes.NewReader(data), NoFallbackScan)
	require.NoError(t, err)
	fromScan, err := LoadSummary(bytes.NewReader(data), ForceScan)
	require.NoError(t, err)
	assert.Equal(t, fromFooter.Statistics.MessageCount, fromScan.Statistics.MessageCount)
	assert.Equal(t, fromFooter.Statistics.MessageStartTime, fromScan.Statistics.MessageStartTime)
	assert.Equal(t, fromFooter.Statistics.MessageEndTime, fromScan.Statistics.MessageEndTime)
	assert.Len(t, fromFooter.Channels, len(fromScan.Channels))
}
