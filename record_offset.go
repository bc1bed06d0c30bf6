package mcap

// RecordOffset identifies a record's position within the data section
// precisely enough to break ties between messages sharing a LogTime: the
// offset of the chunk (or, for an unchunked message, the message itself)
// it came from, and its offset within that chunk's decompressed record
// stream (zero outside a chunk). Ordering by (LogTime, RecordOffset) gives
// the indexed iterator a total, stable order matching file order for
// messages sharing a timestamp (§4.7).
type RecordOffset struct {
	ChunkOffset       uint64
	OffsetWithinChunk uint64
}

// Compare returns -1, 0, or 1 as o sorts before, equal to, or after other.
func (o RecordOffset) Compare(other RecordOffset) int {
	switch {
	case o.ChunkOffset < other.ChunkOffset:
		return -1
	case o.ChunkOffset > other.ChunkOffset:
		return 1
	case o.OffsetWithinChunk < other.OffsetWithinChunk:
		return -1
	case o.OffsetWithinChunk > other.OffsetWithinChunk:
		return 1
	default:
		return 0
	}
}

// Less reports whether o sorts before other.
func (o RecordOffset) Less(other RecordOffset) bool {
	return o.Compare(other) < 0
}
