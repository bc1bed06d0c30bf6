package mcap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexedMessageIteratorReverseOrder(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 48, Compression: CompressionLZ4})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	info, err := r.Info(NoFallbackScan)
	require.NoError(t, err)
	require.True(t, len(info.ChunkIndexes) > 1, "fixture should span multiple chunks at this size")

	it, err := NewIndexedMessageIterator(bytes.NewReader(data), info, &ReadOptions{Order: ReverseLogTimeOrder, UseIndex: true})
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
	for i := 0; i < len(times)-1; i++ {
		assert.GreaterOrEqual(t, times[i], times[i+1])
	}
}

func TestIndexedMessageIteratorTimeBounds(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 48, Compression: CompressionNone})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	it, err := r.Messages(AfterNanos(3), BeforeNanos(7))
	require.NoError(t, err)
	var times []uint64
	for {
		_, _, msg, err := it.Next()
		if err != nil {
			break
		}
		times = append(times, msg.LogTime)
	}
	assert.Equal(t, []uint64{3, 4, 5, 6}, times)
}

// TestIndexedMessageIteratorReverseOrderExactlyReverses writes several
// messages that all share one LogTime, spread across multiple chunks so
// they occupy distinct RecordOffsets in file order. Reverse delivery must
// be the exact reverse of forward delivery, not merely non-increasing
// timestamps: a tie-break that stays ascending under ReverseLogTimeOrder
// would instead regroup runs by chunk, e.g. deliver [3,4,5,6,0,1,2]
// instead of [6,5,4,3,2,1,0].
func TestIndexedMessageIteratorReverseOrderExactlyReverses(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, &WriterOptions{Chunked: true, ChunkSize: 24})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(&Header{}))
	require.NoError(t, w.WriteSchema(&Schema{ID: 1, Name: "int", Encoding: "raw"}))
	require.NoError(t, w.WriteChannel(&Channel{ID: 1, SchemaID: 1, Topic: "/ties", MessageEncoding: "raw"}))
	for i := byte(0); i < 7; i++ {
		require.NoError(t, w.WriteMessage(&Message{
			ChannelID: 1,
			Sequence:  uint32(i),
			LogTime:   42,
			Data:      []byte{i},
		}))
	}
	require.NoError(t, w.Close())
	data := buf.Bytes()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	info, err := r.Info(NoFallbackScan)
	require.NoError(t, err)
	require.True(t, len(info.ChunkIndexes) > 1, "fixture should span multiple chunks")

	forward, err := NewIndexedMessageIterator(bytes.NewReader(data), info, &ReadOptions{Order: LogTimeOrder, UseIndex: true})
	require.NoError(t, err)
	var forwardOrder []byte
	for {
		_, _, msg, err := forward.Next()
		if err != nil {
			break
		}
		forwardOrder = append(forwardOrder, msg.Data[0])
	}
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6}, forwardOrder)

	reverse, err := NewIndexedMessageIterator(bytes.NewReader(data), info, &ReadOptions{Order: ReverseLogTimeOrder, UseIndex: true})
	require.NoError(t, err)
	var reverseOrder []byte
	for {
		_, _, msg, err := reverse.Next()
		if err != nil {
			break
		}
		reverseOrder = append(reverseOrder, msg.Data[0])
	}
	require.Equal(t, []byte{6, 5, 4, 3, 2, 1, 0}, reverseOrder)
}

func TestIndexedMessageIteratorReplaysMetadataCallback(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 48, Compression: CompressionNone})
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	var names []string
	it, err := r.Messages(WithMetadataCallback(func(m *Metadata) error {
		names = append(names, m.Name)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, names, "callback should fire before any message is yielded")

	_, _, _, err = it.Next()
	require.NoError(t, err)
}
