package mcap

import (
	"fmt"
	"io"
	"math"
)

// Magic is the 8-byte delimiter that opens and closes every MCAP file.
var Magic = []byte{0x89, 'M', 'C', 'A', 'P', 0x30, '\r', '\n'}

// CompressionFormat names a chunk compression codec.
type CompressionFormat string

const (
	// CompressionNone indicates an uncompressed chunk. On the wire this is
	// the empty string, not the literal word "none".
	CompressionNone CompressionFormat = ""
	// CompressionLZ4 indicates LZ4 frame-format compression.
	CompressionLZ4 CompressionFormat = "lz4"
	// CompressionZSTD indicates zstd compression.
	CompressionZSTD CompressionFormat = "zstd"
)

// String converts a compression format to its on-wire string.
func (c CompressionFormat) String() string {
	return string(c)
}

// OpCode identifies the kind of record framed by the byte immediately
// preceding its length field.
type OpCode byte

const (
	OpReserved        OpCode = 0x00
	OpHeader          OpCode = 0x01
	OpFooter          OpCode = 0x02
	OpSchema          OpCode = 0x03
	OpChannel         OpCode = 0x04
	OpMessage         OpCode = 0x05
	OpChunk           OpCode = 0x06
	OpMessageIndex    OpCode = 0x07
	OpChunkIndex      OpCode = 0x08
	OpAttachment      OpCode = 0x09
	OpAttachmentIndex OpCode = 0x0A
	OpStatistics      OpCode = 0x0B
	OpMetadata        OpCode = 0x0C
	OpMetadataIndex   OpCode = 0x0D
	OpSummaryOffset   OpCode = 0x0E
	OpDataEnd         OpCode = 0x0F
)

// String renders an opcode in the form used in error messages.
func (c OpCode) String() string {
	switch c {
	case OpReserved:
		return "reserved"
	case OpHeader:
		return "header"
	case OpFooter:
		return "footer"
	case OpSchema:
		return "schema"
	case OpChannel:
		return "channel"
	case OpMessage:
		return "message"
	case OpChunk:
		return "chunk"
	case OpMessageIndex:
		return "message index"
	case OpChunkIndex:
		return "chunk index"
	case OpAttachment:
		return "attachment"
	case OpAttachmentIndex:
		return "attachment index"
	case OpStatistics:
		return "statistics"
	case OpMetadata:
		return "metadata"
	case OpMetadataIndex:
		return "metadata index"
	case OpSummaryOffset:
		return "summary offset"
	case OpDataEnd:
		return "data end"
	default:
		return fmt.Sprintf("<unrecognized opcode 0x%02x>", byte(c))
	}
}

// Header is the first record in a well-formed MCAP file.
type Header struct {
	Profile string
	Library string
}

// Footer carries end-of-file locations. It is the last record before the
// closing magic.
type Footer struct {
	SummaryStart       uint64
	SummaryOffsetStart uint64
	SummaryCRC         uint32
}

// Schema describes the encoding of messages on one or more channels. Schema
// id 0 is reserved and means "schemaless".
type Schema struct {
	ID       uint16
	Name     string
	Encoding string
	Data     []byte
}

// Channel names an encoded stream of messages, referencing a Schema by id.
type Channel struct {
	ID              uint16
	SchemaID        uint16
	Topic           string
	MessageEncoding string
	Metadata        map[string]string
}

// Message is a single timestamped payload on a Channel.
type Message struct {
	ChannelID   uint16
	Sequence    uint32
	LogTime     uint64
	PublishTime uint64
	Data        []byte
}

// PopulateFrom decodes a Message record body into m, reusing m.Data's
// backing array when copyData is true and it has enough capacity.
func (m *Message) PopulateFrom(buf []byte, copyData bool) error {
	channelID, offset, err := getUint16(buf, 0)
	if err != nil {
		return fmt.Errorf("failed to read channel ID: %w", err)
	}
	sequence, offset, err := getUint32(buf, offset)
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}
	logTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return fmt.Errorf("failed to read log time: %w", err)
	}
	publishTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return fmt.Errorf("failed to read publish time: %w", err)
	}
	data := buf[offset:]
	m.ChannelID = channelID
	m.Sequence = sequence
	m.LogTime = logTime
	m.PublishTime = publishTime
	if copyData {
		m.Data = append(m.Data[:0], data...)
	} else {
		m.Data = data
	}
	return nil
}

// Chunk batches Schema, Channel, and Message records, optionally compressed.
type Chunk struct {
	MessageStartTime uint64
	MessageEndTime   uint64
	UncompressedSize uint64
	UncompressedCRC  uint32
	Compression      string
	Records          []byte
}

// MessageIndexEntry locates one message within a chunk's uncompressed
// record stream.
type MessageIndexEntry struct {
	Timestamp uint64
	Offset    uint64
}

// MessageIndex lists the message offsets for one channel within one chunk.
// Exactly one MessageIndex exists per (chunk, channel with >=1 message),
// written immediately after its chunk.
type MessageIndex struct {
	ChannelID    uint16
	Records      []MessageIndexEntry
	currentIndex int
}

// Reset clears the index for reuse without releasing its backing array.
func (idx *MessageIndex) Reset() {
	idx.currentIndex = 0
}

// IsEmpty reports whether any entries have been added since the last Reset.
func (idx *MessageIndex) IsEmpty() bool {
	return idx.currentIndex == 0
}

// Entries returns the entries added since the last Reset.
func (idx *MessageIndex) Entries() []MessageIndexEntry {
	return idx.Records[:idx.currentIndex]
}

// Add appends an entry, growing the backing array if needed.
func (idx *MessageIndex) Add(timestamp, offset uint64) {
	if idx.currentIndex >= len(idx.Records) {
		records := make([]MessageIndexEntry, (len(idx.Records)+20)*2)
		copy(records, idx.Records)
		idx.Records = records
	}
	idx.Records[idx.currentIndex] = MessageIndexEntry{Timestamp: timestamp, Offset: offset}
	idx.currentIndex++
}

// ChunkIndex locates a Chunk record and its trailing MessageIndex records.
type ChunkIndex struct {
	MessageStartTime    uint64
	MessageEndTime      uint64
	ChunkStartOffset    uint64
	ChunkLength         uint64
	MessageIndexOffsets map[uint16]uint64
	MessageIndexLength  uint64
	Compression         CompressionFormat
	CompressedSize      uint64
	UncompressedSize    uint64
}

// Attachment is a user blob written directly to the data section (never
// inside a chunk).
type Attachment struct {
	LogTime     uint64
	CreateTime  uint64
	Name        string
	ContentType string
	Data        []byte
}

// AttachmentIndex locates an Attachment record.
type AttachmentIndex struct {
	Offset      uint64
	Length      uint64
	LogTime     uint64
	CreateTime  uint64
	DataSize    uint64
	Name        string
	ContentType string
}

// Statistics summarizes the recorded data: counts and min/max message times.
type Statistics struct {
	MessageCount         uint64
	SchemaCount          uint16
	ChannelCount         uint32
	AttachmentCount      uint32
	MetadataCount        uint32
	ChunkCount           uint32
	MessageStartTime     uint64
	MessageEndTime       uint64
	ChannelMessageCounts map[uint16]uint64
}

// Metadata holds arbitrary named key-value data.
type Metadata struct {
	Name     string
	Metadata map[string]string
}

// MetadataIndex locates a Metadata record.
type MetadataIndex struct {
	Offset uint64
	Length uint64
	Name   string
}

// SummaryOffset locates a contiguous run of summary records sharing one
// opcode, allowing a reader to jump straight to e.g. all ChunkIndex records.
type SummaryOffset struct {
	GroupOpcode OpCode
	GroupStart  uint64
	GroupLength uint64
}

// DataEnd terminates the data section. A zero DataSectionCRC means absent.
type DataEnd struct {
	DataSectionCRC uint32
}

// Info is the result of loading a file's summary: schemas, channels, and
// indexes needed to serve indexed reads without a full linear scan.
type Info struct {
	Header            *Header
	Footer            *Footer
	Statistics        *Statistics
	Schemas           map[uint16]*Schema
	Channels          map[uint16]*Channel
	ChunkIndexes      []*ChunkIndex
	AttachmentIndexes []*AttachmentIndex
	MetadataIndexes   []*MetadataIndex
}

// ChannelCounts maps topic name to message count, using Statistics'
// per-channel counts and this Info's channel table.
func (i *Info) ChannelCounts() map[string]uint64 {
	counts := make(map[string]uint64, len(i.Statistics.ChannelMessageCounts))
	for id, n := range i.Statistics.ChannelMessageCounts {
		if channel, ok := i.Channels[id]; ok {
			counts[channel.Topic] = n
		}
	}
	return counts
}

// CanReadMessagesUsingIndex reports whether the indexed message iterator can
// serve a read from this Info without falling back to a linear scan.
func (i *Info) CanReadMessagesUsingIndex() bool {
	return len(i.ChunkIndexes) > 0 || (i.Statistics != nil && i.Statistics.MessageCount == 0)
}

func makeSafe(n uint64) ([]byte, error) {
	if n < math.MaxInt32 {
		return make([]byte, n), nil
	}
	return nil, ErrLengthOutOfRange
}

// discard consumes and throws away n bytes from r.
func discard(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}
