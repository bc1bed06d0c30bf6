package mcap

import (
	"bytes"
	"testing"
)

// BenchmarkWriteChunkedMessages measures message-write throughput for a
// chunked, zstd-compressed file, adapted from benchmarking/go_bench's
// write benchmark shape (one channel, fixed-size payloads, 1000
// messages per file).
func BenchmarkWriteChunkedMessages(b *testing.B) {
	payload := make([]byte, 64)
	for n := 0; n < b.N; n++ {
		buf := &bytes.Buffer{}
		w, err := NewWriter(buf, &WriterOptions{
			Chunked:     true,
			ChunkSize:   4 * 1024 * 1024,
			Compression: CompressionZSTD,
		})
		if err != nil {
			b.Fatal(err)
		}
		if err := w.WriteHeader(&Header{Profile: "bench"}); err != nil {
			b.Fatal(err)
		}
		if err := w.WriteSchema(&Schema{ID: 1, Name: "bytes", Encoding: "raw"}); err != nil {
			b.Fatal(err)
		}
		if err := w.WriteChannel(&Channel{ID: 1, SchemaID: 1, Topic: "/bench", MessageEncoding: "raw"}); err != nil {
			b.Fatal(err)
		}
		for i := 0; i < 1000; i++ {
			if err := w.WriteMessage(&Message{ChannelID: 1, LogTime: uint64(i), Data: payload}); err != nil {
				b.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkIndexedMessageIterator measures ordered-read throughput over a
// pre-written chunked file, adapted from benchmarking/go_bench's read
// benchmark shape.
func BenchmarkIndexedMessageIterator(b *testing.B) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, &WriterOptions{Chunked: true, ChunkSize: 4 * 1024 * 1024, Compression: CompressionZSTD})
	if err != nil {
		b.Fatal(err)
	}
	if err := w.WriteHeader(&Header{}); err != nil {
		b.Fatal(err)
	}
	if err := w.WriteSchema(&Schema{ID: 1, Name: "bytes", Encoding: "raw"}); err != nil {
		b.Fatal(err)
	}
	if err := w.WriteChannel(&Channel{ID: 1, SchemaID: 1, Topic: "/bench", MessageEncoding: "raw"}); err != nil {
		b.Fatal(err)
	}
	payload := make([]byte, 64)
	for i := 0; i < 10000; i++ {
		if err := w.WriteMessage(&Message{ChannelID: 1, LogTime: uint64(i), Data: payload}); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		r, err := NewReader(bytes.NewReader(data))
		if err != nil {
			b.Fatal(err)
		}
		it, err := r.Messages()
		if err != nil {
			b.Fatal(err)
		}
		for {
			_, _, _, err := it.Next()
			if err != nil {
				break
			}
		}
	}
}
