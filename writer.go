package mcap

import (
	"bytes"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"sort"
)

// WriterOptions configures a Writer. Grounded on go/mcap/writer.go's
// WriterOptions.
type WriterOptions struct {
	// IncludeCRC computes and writes DataEnd.DataSectionCRC and
	// Footer.SummaryCRC.
	IncludeCRC bool
	// Chunked batches Schema/Channel/Message records into compressed
	// Chunk records instead of writing them directly to the data section.
	Chunked bool
	// ChunkSize bounds how many uncompressed bytes accumulate in the
	// active chunk before it is flushed. Defaults to 1 MiB.
	ChunkSize int64
	// Compression names the codec used for chunk bodies when Chunked.
	Compression CompressionFormat
	// CompressionLevel controls the compressor's speed/ratio tradeoff.
	CompressionLevel CompressionLevel
	// SkipMessageIndexing omits MessageIndex records after each chunk.
	SkipMessageIndexing bool
	// SkipStatistics omits the Statistics record from the summary.
	SkipStatistics bool
	// SkipRepeatedSchemas omits Schema records from the summary section.
	SkipRepeatedSchemas bool
	// SkipRepeatedChannels omits Channel records from the summary section.
	SkipRepeatedChannels bool
	// SkipAttachmentIndex omits AttachmentIndex records from the summary.
	SkipAttachmentIndex bool
	// SkipMetadataIndex omits MetadataIndex records from the summary.
	SkipMetadataIndex bool
	// SkipChunkIndex omits ChunkIndex records from the summary.
	SkipChunkIndex bool
	// SkipSummaryOffsets omits SummaryOffset records entirely.
	SkipSummaryOffsets bool
	// OverrideLibrary, if set, replaces the "mcap go #<version>" prefix
	// WriteHeader would otherwise add to Header.Library.
	OverrideLibrary bool
	// SortChunkMessages sorts each chunk's records by log time before
	// compressing, using a stable sort of the raw variable-length records
	// into a fresh buffer.
	SortChunkMessages bool
}

type writerMessageIndexEntry struct {
	offset    uint64
	timestamp uint64
	channelID uint16
}

// Writer serializes records into a well-formed MCAP stream. Grounded on
// go/mcap/writer.go.
type Writer struct {
	Statistics        *Statistics
	ChunkIndexes      []*ChunkIndex
	AttachmentIndexes []*AttachmentIndex
	MetadataIndexes   []*MetadataIndex

	channelIDs []uint16
	schemaIDs  []uint16
	channels   slicemap[Channel]
	schemas    slicemap[Schema]

	currentMessageIndex map[uint16]*MessageIndex

	w     *writeSizer
	buf   []byte
	msg   []byte
	chunk []byte

	uncompressed      *bytes.Buffer
	compressed        *bytes.Buffer
	compressedWriter  resettableWriteCloser
	uncompressedChunk *bytes.Buffer

	currentChunkStartTime uint64
	currentChunkEndTime   uint64
	currentChunkHasMsgs   bool
	chunkCRC              hash.Hash32

	opts *WriterOptions

	closed bool
}

// NewWriter constructs a Writer over w, writing the leading magic
// immediately. Grounded on go/mcap/writer.go's NewWriter.
func NewWriter(w io.Writer, opts *WriterOptions) (*Writer, error) {
	if opts == nil {
		opts = &WriterOptions{}
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 1024 * 1024
	}
	writer := &Writer{
		currentMessageIndex: make(map[uint16]*MessageIndex),
		w:                   newWriteSizer(w),
		buf:                 make([]byte, 32),
		opts:                opts,
	}
	if opts.Chunked {
		writer.uncompressedChunk = &bytes.Buffer{}
		writer.compressed = &bytes.Buffer{}
		compressedWriter, err := newCompressedWriter(opts.Compression, opts.CompressionLevel, writer.compressed)
		if err != nil {
			return nil, err
		}
		writer.compressedWriter = compressedWriter
		writer.chunkCRC = crc32.NewIEEE()
	}
	if _, err := writer.w.Write(Magic); err != nil {
		return nil, fmt.Errorf("failed to write magic: %w", err)
	}
	return writer, nil
}

func (w *Writer) writeRecord(dest io.Writer, op OpCode, data []byte) error {
	header := make([]byte, 9)
	header[0] = byte(op)
	putUint64(header[1:], uint64(len(data)))
	if _, err := dest.Write(header); err != nil {
		return err
	}
	_, err := dest.Write(data)
	return err
}

func (w *Writer) destination() io.Writer {
	if w.opts.Chunked {
		return w.uncompressedChunk
	}
	return w.w
}

// WriteHeader writes the Header record. Unless OverrideLibrary is set, the
// engine's version is prepended to Library, matching the teacher's
// "mcap go #<version>; <caller library>" convention.
func (w *Writer) WriteHeader(h *Header) error {
	if w.closed {
		return ErrClosed
	}
	library := h.Library
	if !w.opts.OverrideLibrary {
		if library != "" {
			library = fmt.Sprintf("mcap go #%s; %s", version, library)
		} else {
			library = fmt.Sprintf("mcap go #%s", version)
		}
	}
	size := 4 + len(h.Profile) + 4 + len(library)
	buf := make([]byte, size)
	offset := putPrefixedString(buf, h.Profile)
	putPrefixedString(buf[offset:], library)
	return w.writeRecord(w.w, OpHeader, buf)
}

// WriteSchema registers a schema, writing it either directly or into the
// active chunk depending on WriterOptions.Chunked.
func (w *Writer) WriteSchema(s *Schema) error {
	if w.closed {
		return ErrClosed
	}
	if w.schemas.get(s.ID) == nil {
		w.schemaIDs = append(w.schemaIDs, s.ID)
	}
	w.schemas.set(s.ID, s)
	size := 2 + 4 + len(s.Name) + 4 + len(s.Encoding) + 4 + len(s.Data)
	buf := make([]byte, size)
	offset := putUint16(buf, s.ID)
	offset += putPrefixedString(buf[offset:], s.Name)
	offset += putPrefixedString(buf[offset:], s.Encoding)
	putPrefixedBytes(buf[offset:], s.Data)
	return w.writeRecord(w.destination(), OpSchema, buf)
}

// WriteChannel registers a channel, returning ErrUnknownSchema if its
// SchemaID has not been written (schema id 0 is exempt: schemaless).
func (w *Writer) WriteChannel(c *Channel) error {
	if w.closed {
		return ErrClosed
	}
	if c.SchemaID != 0 && w.schemas.get(c.SchemaID) == nil {
		return fmt.Errorf("%w: channel %q references schema %d", ErrUnknownSchema, c.Topic, c.SchemaID)
	}
	if w.channels.get(c.ID) == nil {
		w.channelIDs = append(w.channelIDs, c.ID)
	}
	w.channels.set(c.ID, c)
	metadata, metaLen := encodeStringMap(c.Metadata)
	size := 2 + 2 + 4 + len(c.Topic) + 4 + len(c.MessageEncoding) + 4 + metaLen
	buf := make([]byte, size)
	offset := putUint16(buf, c.ID)
	offset += putUint16(buf[offset:], c.SchemaID)
	offset += putPrefixedString(buf[offset:], c.Topic)
	offset += putPrefixedString(buf[offset:], c.MessageEncoding)
	offset += putUint32(buf[offset:], uint32(metaLen))
	copy(buf[offset:], metadata)
	return w.writeRecord(w.destination(), OpChannel, buf)
}

// encodeStringMap renders a map<string,string> deterministically by
// sorting keys, matching go/mcap/writer.go's makePrefixedMap. Sorted
// write order exists only for determinism of output bytes; consumers must
// not depend on any particular order when reading.
func encodeStringMap(m map[string]string) ([]byte, int) {
	if len(m) == 0 {
		return nil, 0
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	size := 0
	for _, k := range keys {
		size += 4 + len(k) + 4 + len(m[k])
	}
	buf := make([]byte, size)
	offset := 0
	for _, k := range keys {
		offset += putPrefixedString(buf[offset:], k)
		offset += putPrefixedString(buf[offset:], m[k])
	}
	return buf, size
}

// WriteMessage appends a message to the active chunk (or directly to the
// data section if unchunked), updating the running per-channel message
// index and flushing the active chunk if it has grown past ChunkSize.
func (w *Writer) WriteMessage(m *Message) error {
	if w.closed {
		return ErrClosed
	}
	if w.channels.get(m.ChannelID) == nil {
		return fmt.Errorf("%w: message references channel %d", ErrUnknownChannel, m.ChannelID)
	}
	size := 2 + 4 + 8 + 8 + len(m.Data)
	buf := make([]byte, size)
	offset := putUint16(buf, m.ChannelID)
	offset += putUint32(buf[offset:], m.Sequence)
	offset += putUint64(buf[offset:], m.LogTime)
	offset += putUint64(buf[offset:], m.PublishTime)
	copy(buf[offset:], m.Data)

	if w.Statistics == nil {
		w.Statistics = &Statistics{ChannelMessageCounts: make(map[uint16]uint64)}
	}
	w.Statistics.MessageCount++
	w.Statistics.ChannelMessageCounts[m.ChannelID]++
	if w.Statistics.MessageCount == 1 || m.LogTime < w.Statistics.MessageStartTime {
		w.Statistics.MessageStartTime = m.LogTime
	}
	if m.LogTime > w.Statistics.MessageEndTime {
		w.Statistics.MessageEndTime = m.LogTime
	}

	if w.opts.Chunked {
		if !w.currentChunkHasMsgs || m.LogTime < w.currentChunkStartTime {
			w.currentChunkStartTime = m.LogTime
		}
		if !w.currentChunkHasMsgs || m.LogTime > w.currentChunkEndTime {
			w.currentChunkEndTime = m.LogTime
		}
		w.currentChunkHasMsgs = true
		offsetInChunk := uint64(w.uncompressedChunk.Len())
		if !w.opts.SkipMessageIndexing {
			idx := w.currentMessageIndex[m.ChannelID]
			if idx == nil {
				idx = &MessageIndex{ChannelID: m.ChannelID}
				w.currentMessageIndex[m.ChannelID] = idx
			}
			idx.Add(m.LogTime, offsetInChunk)
		}
		if err := w.writeRecord(w.uncompressedChunk, OpMessage, buf); err != nil {
			return err
		}
		if int64(w.uncompressedChunk.Len()) >= w.opts.ChunkSize {
			return w.flushActiveChunk()
		}
		return nil
	}
	return w.writeRecord(w.w, OpMessage, buf)
}

// flushActiveChunk compresses the accumulated chunk buffer, writes the
// Chunk record and its per-channel MessageIndex records, and records a
// ChunkIndex. Grounded on go/mcap/writer.go's flushActiveChunk.
func (w *Writer) flushActiveChunk() error {
	if w.uncompressedChunk.Len() == 0 {
		return nil
	}
	uncompressed := w.uncompressedChunk.Bytes()
	if w.opts.SortChunkMessages {
		var err error
		uncompressed, err = sortChunkRecords(uncompressed)
		if err != nil {
			return err
		}
		// Rebuild the message index entries against the sorted offsets.
		for _, idx := range w.currentMessageIndex {
			idx.Reset()
		}
		for offset := 0; !w.opts.SkipMessageIndexing && offset < len(uncompressed); {
			length := int(u64(uncompressed[offset+1:]))
			if OpCode(uncompressed[offset]) == OpMessage {
				channelID, _, _ := getUint16(uncompressed, offset+9)
				w.currentMessageIndex[channelID].Add(u64(uncompressed[offset+9+2+4:]), uint64(offset))
			}
			offset += 9 + length
		}
	}

	w.chunkCRC.Reset()
	w.chunkCRC.Write(uncompressed)
	uncompressedCRC := w.chunkCRC.Sum32()

	w.compressed.Reset()
	w.compressedWriter.Reset(w.compressed)
	if _, err := w.compressedWriter.Write(uncompressed); err != nil {
		return fmt.Errorf("failed to compress chunk: %w", err)
	}
	if err := w.compressedWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush compressor: %w", err)
	}

	chunkStartOffset := w.w.Size()
	compressedBytes := w.compressed.Bytes()
	header := make([]byte, 8+8+8+4+4+len(w.opts.Compression)+8)
	offset := putUint64(header, w.currentChunkStartTime)
	offset += putUint64(header[offset:], w.currentChunkEndTime)
	offset += putUint64(header[offset:], uint64(len(uncompressed)))
	offset += putUint32(header[offset:], uncompressedCRC)
	offset += putUint32(header[offset:], uint32(len(w.opts.Compression)))
	offset += copy(header[offset:], w.opts.Compression)
	putUint64(header[offset:], uint64(len(compressedBytes)))

	recordLen := uint64(len(header)) + uint64(len(compressedBytes))
	recordHeader := make([]byte, 9)
	recordHeader[0] = byte(OpChunk)
	putUint64(recordHeader[1:], recordLen)
	if _, err := w.w.Write(recordHeader); err != nil {
		return err
	}
	if _, err := w.w.Write(header); err != nil {
		return err
	}
	if _, err := w.w.Write(compressedBytes); err != nil {
		return err
	}

	chunkIndex := &ChunkIndex{
		MessageStartTime:    w.currentChunkStartTime,
		MessageEndTime:      w.currentChunkEndTime,
		ChunkStartOffset:    chunkStartOffset,
		ChunkLength:         9 + recordLen,
		MessageIndexOffsets: make(map[uint16]uint64),
		Compression:         w.opts.Compression,
		CompressedSize:      uint64(len(compressedBytes)),
		UncompressedSize:    uint64(len(uncompressed)),
	}

	if !w.opts.SkipMessageIndexing {
		messageIndexStart := w.w.Size()
		for _, channelID := range w.channelIDsInOrder() {
			idx, ok := w.currentMessageIndex[channelID]
			if !ok || idx.IsEmpty() {
				continue
			}
			chunkIndex.MessageIndexOffsets[channelID] = w.w.Size()
			if err := w.writeMessageIndex(idx); err != nil {
				return err
			}
		}
		chunkIndex.MessageIndexLength = w.w.Size() - messageIndexStart
	}
	for _, idx := range w.currentMessageIndex {
		idx.Reset()
	}

	if !w.opts.SkipChunkIndex {
		w.ChunkIndexes = append(w.ChunkIndexes, chunkIndex)
	}
	if w.Statistics != nil {
		w.Statistics.ChunkCount++
	}

	w.uncompressedChunk.Reset()
	w.currentChunkStartTime = 0
	w.currentChunkEndTime = 0
	w.currentChunkHasMsgs = false
	return nil
}

func (w *Writer) channelIDsInOrder() []uint16 {
	ids := make([]uint16, len(w.channelIDs))
	copy(ids, w.channelIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *Writer) writeMessageIndex(idx *MessageIndex) error {
	entries := idx.Entries()
	buf := make([]byte, 16*len(entries))
	offset := 0
	for _, e := range entries {
		offset += putUint64(buf[offset:], e.Timestamp)
		offset += putUint64(buf[offset:], e.Offset)
	}
	header := make([]byte, 2+4)
	putUint16(header, idx.ChannelID)
	putUint32(header[2:], uint32(len(buf)))
	full := append(header, buf...)
	return w.writeRecord(w.w, OpMessageIndex, full)
}

// WriteAttachment writes an Attachment record directly to the data section
// (attachments are never chunked), along with a trailing CRC32 (IEEE) of
// the record body preceding the CRC field itself.
func (w *Writer) WriteAttachment(a *Attachment) error {
	if w.closed {
		return ErrClosed
	}
	offset0 := w.w.Size()
	size := 8 + 8 + 4 + len(a.Name) + 4 + len(a.ContentType) + 8 + len(a.Data) + 4
	buf := make([]byte, size-4)
	offset := putUint64(buf, a.LogTime)
	offset += putUint64(buf[offset:], a.CreateTime)
	offset += putPrefixedString(buf[offset:], a.Name)
	offset += putPrefixedString(buf[offset:], a.ContentType)
	offset += putUint64(buf[offset:], uint64(len(a.Data)))
	copy(buf[offset:], a.Data)

	crc := crc32.ChecksumIEEE(buf)
	full := make([]byte, size)
	copy(full, buf)
	putUint32(full[len(buf):], crc)

	if err := w.writeRecord(w.w, OpAttachment, full); err != nil {
		return err
	}
	recordLen := uint64(9 + len(full))

	if w.Statistics == nil {
		w.Statistics = &Statistics{ChannelMessageCounts: make(map[uint16]uint64)}
	}
	w.Statistics.AttachmentCount++

	if !w.opts.SkipAttachmentIndex {
		w.AttachmentIndexes = append(w.AttachmentIndexes, &AttachmentIndex{
			Offset:      offset0,
			Length:      recordLen,
			LogTime:     a.LogTime,
			CreateTime:  a.CreateTime,
			DataSize:    uint64(len(a.Data)),
			Name:        a.Name,
			ContentType: a.ContentType,
		})
	}
	return nil
}

// WriteStatistics writes s as the Statistics record.
func (w *Writer) WriteStatistics(s *Statistics) error {
	if w.closed {
		return ErrClosed
	}
	countsBuf := make([]byte, 10*len(s.ChannelMessageCounts))
	offset := 0
	ids := make([]uint16, 0, len(s.ChannelMessageCounts))
	for id := range s.ChannelMessageCounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		offset += putUint16(countsBuf[offset:], id)
		offset += putUint64(countsBuf[offset:], s.ChannelMessageCounts[id])
	}
	size := 8 + 2 + 4 + 4 + 4 + 4 + 8 + 8 + 4 + len(countsBuf)
	buf := make([]byte, size)
	o := putUint64(buf, s.MessageCount)
	o += putUint16(buf[o:], s.SchemaCount)
	o += putUint32(buf[o:], s.ChannelCount)
	o += putUint32(buf[o:], s.AttachmentCount)
	o += putUint32(buf[o:], s.MetadataCount)
	o += putUint32(buf[o:], s.ChunkCount)
	o += putUint64(buf[o:], s.MessageStartTime)
	o += putUint64(buf[o:], s.MessageEndTime)
	o += putUint32(buf[o:], uint32(len(countsBuf)))
	copy(buf[o:], countsBuf)
	return w.writeRecord(w.w, OpStatistics, buf)
}

// WriteMetadata writes a Metadata record directly to the data section.
func (w *Writer) WriteMetadata(m *Metadata) error {
	if w.closed {
		return ErrClosed
	}
	offset0 := w.w.Size()
	metadata, metaLen := encodeStringMap(m.Metadata)
	size := 4 + len(m.Name) + 4 + metaLen
	buf := make([]byte, size)
	offset := putPrefixedString(buf, m.Name)
	offset += putUint32(buf[offset:], uint32(metaLen))
	copy(buf[offset:], metadata)
	if err := w.writeRecord(w.w, OpMetadata, buf); err != nil {
		return err
	}
	if w.Statistics == nil {
		w.Statistics = &Statistics{ChannelMessageCounts: make(map[uint16]uint64)}
	}
	w.Statistics.MetadataCount++
	if !w.opts.SkipMetadataIndex {
		w.MetadataIndexes = append(w.MetadataIndexes, &MetadataIndex{
			Offset: offset0,
			Length: uint64(9 + len(buf)),
			Name:   m.Name,
		})
	}
	return nil
}

// WriteDataEnd writes the DataEnd record, flushing any active chunk first.
func (w *Writer) WriteDataEnd() error {
	if w.closed {
		return ErrClosed
	}
	if w.opts.Chunked {
		if err := w.flushActiveChunk(); err != nil {
			return err
		}
	}
	var crc uint32
	if w.opts.IncludeCRC {
		crc = w.w.Checksum()
	}
	buf := make([]byte, 4)
	putUint32(buf, crc)
	if err := w.writeRecord(w.w, OpDataEnd, buf); err != nil {
		return err
	}
	w.w.ResetCRC()
	return nil
}

// writeSummarySection writes the repeated Schema/Channel/Statistics/
// ChunkIndex/AttachmentIndex/MetadataIndex groups, returning a
// SummaryOffset per group for the file's final SummaryOffset records.
// Grounded on go/mcap/writer.go's writeSummarySection.
func (w *Writer) writeSummarySection() ([]*SummaryOffset, error) {
	var offsets []*SummaryOffset

	if !w.opts.SkipRepeatedSchemas {
		start := w.w.Size()
		for _, id := range w.schemaIDs {
			s := w.schemas.get(id)
			size := 2 + 4 + len(s.Name) + 4 + len(s.Encoding) + 4 + len(s.Data)
			buf := make([]byte, size)
			o := putUint16(buf, s.ID)
			o += putPrefixedString(buf[o:], s.Name)
			o += putPrefixedString(buf[o:], s.Encoding)
			putPrefixedBytes(buf[o:], s.Data)
			if err := w.writeRecord(w.w, OpSchema, buf); err != nil {
				return nil, err
			}
		}
		if w.w.Size() > start {
			offsets = append(offsets, &SummaryOffset{GroupOpcode: OpSchema, GroupStart: start, GroupLength: w.w.Size() - start})
		}
	}

	if !w.opts.SkipRepeatedChannels {
		start := w.w.Size()
		for _, id := range w.channelIDsInOrder() {
			c := w.channels.get(id)
			metadata, metaLen := encodeStringMap(c.Metadata)
			size := 2 + 2 + 4 + len(c.Topic) + 4 + len(c.MessageEncoding) + 4 + metaLen
			buf := make([]byte, size)
			o := putUint16(buf, c.ID)
			o += putUint16(buf[o:], c.SchemaID)
			o += putPrefixedString(buf[o:], c.Topic)
			o += putPrefixedString(buf[o:], c.MessageEncoding)
			o += putUint32(buf[o:], uint32(metaLen))
			copy(buf[o:], metadata)
			if err := w.writeRecord(w.w, OpChannel, buf); err != nil {
				return nil, err
			}
		}
		if w.w.Size() > start {
			offsets = append(offsets, &SummaryOffset{GroupOpcode: OpChannel, GroupStart: start, GroupLength: w.w.Size() - start})
		}
	}

	if !w.opts.SkipStatistics && w.Statistics != nil {
		start := w.w.Size()
		if err := w.WriteStatistics(w.Statistics); err != nil {
			return nil, err
		}
		offsets = append(offsets, &SummaryOffset{GroupOpcode: OpStatistics, GroupStart: start, GroupLength: w.w.Size() - start})
	}

	if !w.opts.SkipChunkIndex && len(w.ChunkIndexes) > 0 {
		start := w.w.Size()
		for _, idx := range w.ChunkIndexes {
			if err := w.writeChunkIndex(idx); err != nil {
				return nil, err
			}
		}
		offsets = append(offsets, &SummaryOffset{GroupOpcode: OpChunkIndex, GroupStart: start, GroupLength: w.w.Size() - start})
	}

	if !w.opts.SkipAttachmentIndex && len(w.AttachmentIndexes) > 0 {
		start := w.w.Size()
		for _, idx := range w.AttachmentIndexes {
			if err := w.writeAttachmentIndex(idx); err != nil {
				return nil, err
			}
		}
		offsets = append(offsets, &SummaryOffset{GroupOpcode: OpAttachmentIndex, GroupStart: start, GroupLength: w.w.Size() - start})
	}

	if !w.opts.SkipMetadataIndex && len(w.MetadataIndexes) > 0 {
		start := w.w.Size()
		for _, idx := range w.MetadataIndexes {
			if err := w.writeMetadataIndex(idx); err != nil {
				return nil, err
			}
		}
		offsets = append(offsets, &SummaryOffset{GroupOpcode: OpMetadataIndex, GroupStart: start, GroupLength: w.w.Size() - start})
	}

	return offsets, nil
}

func (w *Writer) writeChunkIndex(idx *ChunkIndex) error {
	offsetsBuf := make([]byte, 10*len(idx.MessageIndexOffsets))
	ids := make([]uint16, 0, len(idx.MessageIndexOffsets))
	for id := range idx.MessageIndexOffsets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	offset := 0
	for _, id := range ids {
		offset += putUint16(offsetsBuf[offset:], id)
		offset += putUint64(offsetsBuf[offset:], idx.MessageIndexOffsets[id])
	}
	size := 8 + 8 + 8 + 8 + 4 + len(offsetsBuf) + 8 + 4 + len(idx.Compression) + 8 + 8
	buf := make([]byte, size)
	o := putUint64(buf, idx.MessageStartTime)
	o += putUint64(buf[o:], idx.MessageEndTime)
	o += putUint64(buf[o:], idx.ChunkStartOffset)
	o += putUint64(buf[o:], idx.ChunkLength)
	o += putUint32(buf[o:], uint32(len(offsetsBuf)))
	o += copy(buf[o:], offsetsBuf)
	o += putUint64(buf[o:], idx.MessageIndexLength)
	o += putPrefixedString(buf[o:], idx.Compression.String())
	o += putUint64(buf[o:], idx.CompressedSize)
	putUint64(buf[o:], idx.UncompressedSize)
	return w.writeRecord(w.w, OpChunkIndex, buf)
}

func (w *Writer) writeAttachmentIndex(idx *AttachmentIndex) error {
	size := 8 + 8 + 8 + 8 + 8 + 4 + len(idx.Name) + 4 + len(idx.ContentType)
	buf := make([]byte, size)
	o := putUint64(buf, idx.Offset)
	o += putUint64(buf[o:], idx.Length)
	o += putUint64(buf[o:], idx.LogTime)
	o += putUint64(buf[o:], idx.CreateTime)
	o += putUint64(buf[o:], idx.DataSize)
	o += putPrefixedString(buf[o:], idx.Name)
	putPrefixedString(buf[o:], idx.ContentType)
	return w.writeRecord(w.w, OpAttachmentIndex, buf)
}

func (w *Writer) writeMetadataIndex(idx *MetadataIndex) error {
	size := 8 + 8 + 4 + len(idx.Name)
	buf := make([]byte, size)
	o := putUint64(buf, idx.Offset)
	o += putUint64(buf[o:], idx.Length)
	putPrefixedString(buf[o:], idx.Name)
	return w.writeRecord(w.w, OpMetadataIndex, buf)
}

func (w *Writer) writeSummaryOffset(o *SummaryOffset) error {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(o.GroupOpcode)
	putUint64(buf[1:], o.GroupStart)
	putUint64(buf[9:], o.GroupLength)
	return w.writeRecord(w.w, OpSummaryOffset, buf)
}

// writeFooter writes the Footer record. SummaryStart and
// SummaryOffsetStart must already reflect where those sections begin;
// SummaryCRC is computed over every byte written since the last
// w.w.ResetCRC() call (i.e. since DataEnd) when IncludeCRC is set.
func (w *Writer) writeFooter(summaryStart, summaryOffsetStart uint64) error {
	var crc uint32
	if w.opts.IncludeCRC {
		crc = w.w.Checksum()
	}
	buf := make([]byte, 8+8+4)
	o := putUint64(buf, summaryStart)
	o += putUint64(buf[o:], summaryOffsetStart)
	putUint32(buf[o:], crc)
	return w.writeRecord(w.w, OpFooter, buf)
}

// Close flushes any active chunk, writes DataEnd, the summary section,
// SummaryOffset records, the Footer, and the closing magic. The Writer
// must not be used afterward.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.WriteDataEnd(); err != nil {
		return err
	}
	summaryStart := w.w.Size()
	offsets, err := w.writeSummarySection()
	if err != nil {
		return err
	}
	summaryOffsetStart := uint64(0)
	if !w.opts.SkipSummaryOffsets {
		summaryOffsetStart = w.w.Size()
		for _, o := range offsets {
			if err := w.writeSummaryOffset(o); err != nil {
				return err
			}
		}
	}
	if err := w.writeFooter(summaryStart, summaryOffsetStart); err != nil {
		return err
	}
	if _, err := w.w.Write(Magic); err != nil {
		return err
	}
	w.closed = true
	return nil
}

// sortChunkRecords sorts an uncompressed chunk's variable-length records
// by ascending log time using a stable sort over whole records, copied
// into a fresh buffer, avoiding a full re-encode. Grounded on go/mcap/writer.go's
// sortChunk/swapSlices, a supplemental feature (see SPEC_FULL.md §12):
// messages interleaved from multiple channels during capture often arrive
// slightly out of order, and sorting the chunk keeps per-chunk message
// indexes monotonic without requiring the caller to buffer and sort
// upstream.
func sortChunkRecords(buf []byte) ([]byte, error) {
	type record struct {
		start, end int64
		logTime    uint64
	}
	var records []record
	offset := int64(0)
	for offset < int64(len(buf)) {
		if offset+9 > int64(len(buf)) {
			return nil, io.ErrUnexpectedEOF
		}
		op := OpCode(buf[offset])
		length := u64(buf[offset+1:])
		end := offset + 9 + int64(length)
		if end > int64(len(buf)) {
			return nil, io.ErrUnexpectedEOF
		}
		logTime := uint64(0)
		if op == OpMessage {
			logTime = u64(buf[offset+9+2+4:])
		}
		records = append(records, record{start: offset, end: end, logTime: logTime})
		offset = end
	}
	out := make([]byte, 0, len(buf))
	// stable sort preserves relative order of non-message records and of
	// messages sharing a log time.
	sort.SliceStable(records, func(i, j int) bool { return records[i].logTime < records[j].logTime })
	for _, r := range records {
		out = append(out, buf[r.start:r.end]...)
	}
	return out, nil
}
