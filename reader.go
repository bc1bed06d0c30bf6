package mcap

import (
	"bufio"
	"fmt"
	"io"
)

// Reader provides file-level and iterator-level access to an MCAP stream:
// header inspection, summary loading, ordered/filtered message iteration,
// and attachment/metadata access. Grounded on go/mcap/reader.go.
type Reader struct {
	r  io.Reader
	rs io.ReadSeeker

	header *Header
}

// NewReader constructs a Reader over r, detecting whether it also
// supports seeking (needed for indexed reads and summary loading).
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{r: r}
	if rs, ok := r.(io.ReadSeeker); ok {
		reader.rs = rs
	}
	return reader, nil
}

// Header reads and returns the file's leading Header record, consuming it
// from the underlying reader. Subsequent reads from r continue after the
// header; Info and Messages reposition the stream themselves when a
// ReadSeeker is available.
func (r *Reader) Header() (*Header, error) {
	if r.header != nil {
		return r.header, nil
	}
	lex, err := NewLexer(r.r, &LexerOptions{EmitChunks: true})
	if err != nil {
		return nil, err
	}
	tok, body, n, err := lex.Next(nil)
	if err != nil {
		return nil, err
	}
	if tok != TokenHeader {
		return nil, &UnexpectedTokenError{Opcode: OpHeader, Reason: "expected header as first record"}
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(body, data); err != nil {
		return nil, err
	}
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	r.header = h
	return h, nil
}

// Info loads the file's Info using the given scan mode. Requires a
// seekable underlying reader.
func (r *Reader) Info(mode SummaryScanMode) (*Info, error) {
	if r.rs == nil {
		return nil, ErrNotSeekable
	}
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	info, err := LoadSummary(r.rs, mode)
	if err != nil {
		return nil, err
	}
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return info, nil
}

// Messages returns an iterator over this file's messages, configured by
// opts. When the underlying reader is not seekable, or ReadOptions
// explicitly disable the index, messages are delivered in file order by
// streaming the data section directly; otherwise the summary section is
// loaded (falling back to a full scan if absent) and messages are served
// through the indexed iterator, or, when the loaded Info cannot serve
// indexed reads, by streaming the file from its start (FileOrder only).
func (r *Reader) Messages(opts ...ReadOpt) (MessageIterator, error) {
	readOpts, err := NewReadOptions(opts...)
	if err != nil {
		return nil, err
	}
	if !readOpts.UseIndex || r.rs == nil {
		// The file is read start-to-finish exactly once. A seekable
		// source is rewound first; a non-seekable one must still be
		// positioned at the leading magic.
		if r.rs != nil {
			if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
		}
		return NewUnindexedMessageIterator(r.r, readOpts)
	}
	info, err := r.Info(AllowFallbackScan)
	if err != nil {
		return nil, err
	}
	if !info.CanReadMessagesUsingIndex() {
		if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return NewUnindexedMessageIterator(r.rs, readOpts)
	}
	return NewIndexedMessageIterator(r.rs, info, readOpts)
}

// AttachmentReader streams one attachment's data while incrementally
// computing its CRC32 (IEEE), so a caller can verify integrity without
// buffering the whole attachment up front. A supplemental feature (see
// SPEC_FULL.md §12), grounded on go/mcap/mcap.go's streaming-CRC
// AttachmentReader rather than go/mcap/reader.go's simpler, non-verifying
// type of the same name.
type AttachmentReader struct {
	Attachment
	body      *crcReader
	parsedCRC uint32
	consumed  bool
}

// Read reads attachment data, accumulating its running CRC.
func (a *AttachmentReader) Read(p []byte) (int, error) {
	n, err := a.body.Read(p)
	if err == io.EOF {
		a.consumed = true
	}
	return n, err
}

// ComputedCRC returns the CRC32 of all attachment bytes read so far. Call
// only after fully consuming Read, or it will not match ParsedCRC.
func (a *AttachmentReader) ComputedCRC() uint32 {
	return a.body.Checksum()
}

// ParsedCRC returns the CRC32 value recorded in the attachment's trailer.
// A value of 0 means the writer omitted a CRC.
func (a *AttachmentReader) ParsedCRC() uint32 {
	return a.parsedCRC
}

// Verify reports whether the fully-consumed attachment's computed CRC
// matches its parsed CRC, or ErrAttachmentDataIncomplete if Read has not
// yet reached EOF.
func (a *AttachmentReader) Verify() error {
	if !a.consumed {
		return ErrAttachmentDataIncomplete
	}
	if a.parsedCRC != 0 && a.ComputedCRC() != a.parsedCRC {
		return fmt.Errorf("%w: attachment %q", ErrCRCMismatch, a.Name)
	}
	return nil
}

// attachmentReaderFrom constructs a streaming AttachmentReader over r,
// which must be positioned at the start of an Attachment record's body
// (i.e. immediately after its 9-byte opcode+length header).
func attachmentReaderFrom(r io.Reader) (*AttachmentReader, error) {
	br := bufio.NewReader(r)
	fixed := make([]byte, 8+8)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, err
	}
	logTime, _, _ := getUint64(fixed, 0)
	createTime, _, _ := getUint64(fixed, 8)
	name, err := readPrefixedStringFrom(br)
	if err != nil {
		return nil, err
	}
	contentType, err := readPrefixedStringFrom(br)
	if err != nil {
		return nil, err
	}
	lenBuf := make([]byte, 8)
	if _, err := io.ReadFull(br, lenBuf); err != nil {
		return nil, err
	}
	dataLen := u64(lenBuf)
	return &AttachmentReader{
		Attachment: Attachment{
			LogTime:     logTime,
			CreateTime:  createTime,
			Name:        name,
			ContentType: contentType,
		},
		body: newCRCReader(io.LimitReader(br, int64(dataLen)), true),
	}, nil
}

func readPrefixedStringFrom(r io.Reader) (string, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return "", err
	}
	n, _, err := getUint32(lenBuf, 0)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Attachments returns every attachment recorded in info, streaming each
// one's data via AttachmentReader. Requires a seekable reader.
func (r *Reader) Attachments(info *Info) ([]*AttachmentReader, error) {
	if r.rs == nil {
		return nil, ErrNotSeekable
	}
	readers := make([]*AttachmentReader, 0, len(info.AttachmentIndexes))
	for _, idx := range info.AttachmentIndexes {
		if _, err := r.rs.Seek(int64(idx.Offset)+9, io.SeekStart); err != nil {
			return nil, err
		}
		ar, err := attachmentReaderFrom(r.rs)
		if err != nil {
			return nil, err
		}
		readers = append(readers, ar)
	}
	return readers, nil
}

// Metadata returns every metadata record recorded in info. Requires a
// seekable reader.
func (r *Reader) Metadata(info *Info) ([]*Metadata, error) {
	if r.rs == nil {
		return nil, ErrNotSeekable
	}
	out := make([]*Metadata, 0, len(info.MetadataIndexes))
	for _, idx := range info.MetadataIndexes {
		if _, err := r.rs.Seek(int64(idx.Offset), io.SeekStart); err != nil {
			return nil, err
		}
		header := make([]byte, 9)
		if _, err := io.ReadFull(r.rs, header); err != nil {
			return nil, err
		}
		length := u64(header[1:])
		body := make([]byte, length)
		if _, err := io.ReadFull(r.rs, body); err != nil {
			return nil, err
		}
		m, err := ParseMetadata(body)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ContentRecord is implemented by the three kinds of timestamped content
// a file may hold: resolved messages, attachments, and metadata. A
// supplemental feature (SPEC_FULL.md §12) unifying them behind one pull
// interface, grounded on go/mcap/reader.go's ContentRecord/ContentIterator.
type ContentRecord interface {
	contentRecord()
}

// ResolvedMessage pairs a Message with its Schema (nil if schemaless) and
// Channel, as returned by a MessageIterator.
type ResolvedMessage struct {
	Schema  *Schema
	Channel *Channel
	Message *Message
}

func (*ResolvedMessage) contentRecord() {}
func (*AttachmentReader) contentRecord() {}
func (*Metadata) contentRecord()         {}

// ContentIterator is a single pull stream over a mix of content kinds.
type ContentIterator interface {
	Next() (ContentRecord, error)
}

// contentIterator chains pre-loaded metadata and attachment readers with a
// MessageIterator: it delivers every metadata record first, in index
// order, then every attachment, in index order, then the messages in the
// MessageIterator's order. Content kinds are not merged by timestamp.
type contentIterator struct {
	messages    MessageIterator
	attachments []*AttachmentReader
	metadata    []*Metadata
	ai, mi      int
}

// NewContentIterator builds a ContentIterator over everything info
// describes, reading messages via it and attachments/metadata eagerly
// located (but not yet streamed) from info's indexes.
func NewContentIterator(r *Reader, info *Info, opts ...ReadOpt) (ContentIterator, error) {
	msgs, err := r.Messages(opts...)
	if err != nil {
		return nil, err
	}
	attachments, err := r.Attachments(info)
	if err != nil && err != ErrNotSeekable {
		return nil, err
	}
	metadata, err := r.Metadata(info)
	if err != nil && err != ErrNotSeekable {
		return nil, err
	}
	return &contentIterator{messages: msgs, attachments: attachments, metadata: metadata}, nil
}

func (c *contentIterator) Next() (ContentRecord, error) {
	if c.mi < len(c.metadata) {
		m := c.metadata[c.mi]
		c.mi++
		return m, nil
	}
	if c.ai < len(c.attachments) {
		a := c.attachments[c.ai]
		c.ai++
		return a, nil
	}
	schema, channel, msg, err := c.messages.Next()
	if err != nil {
		return nil, err
	}
	return &ResolvedMessage{Schema: schema, Channel: channel, Message: msg}, nil
}

// Range calls f for every record it yields, stopping at the first error
// (io.EOF is treated as a clean end, not propagated).
func Range(it ContentIterator, f func(ContentRecord) error) error {
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f(rec); err != nil {
			return err
		}
	}
}
