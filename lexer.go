package mcap

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// TokenType identifies the kind of record a Lexer.Next call returned.
type TokenType int

const (
	TokenHeader TokenType = iota
	TokenFooter
	TokenSchema
	TokenChannel
	TokenMessage
	TokenChunk
	TokenMessageIndex
	TokenChunkIndex
	TokenAttachment
	TokenAttachmentIndex
	TokenStatistics
	TokenMetadata
	TokenMetadataIndex
	TokenSummaryOffset
	TokenDataEnd
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenHeader:
		return "header"
	case TokenFooter:
		return "footer"
	case TokenSchema:
		return "schema"
	case TokenChannel:
		return "channel"
	case TokenMessage:
		return "message"
	case TokenChunk:
		return "chunk"
	case TokenMessageIndex:
		return "message index"
	case TokenChunkIndex:
		return "chunk index"
	case TokenAttachment:
		return "attachment"
	case TokenAttachmentIndex:
		return "attachment index"
	case TokenStatistics:
		return "statistics"
	case TokenMetadata:
		return "metadata"
	case TokenMetadataIndex:
		return "metadata index"
	case TokenSummaryOffset:
		return "summary offset"
	case TokenDataEnd:
		return "data end"
	default:
		return "error"
	}
}

func opcodeToken(op OpCode) TokenType {
	switch op {
	case OpHeader:
		return TokenHeader
	case OpFooter:
		return TokenFooter
	case OpSchema:
		return TokenSchema
	case OpChannel:
		return TokenChannel
	case OpMessage:
		return TokenMessage
	case OpChunk:
		return TokenChunk
	case OpMessageIndex:
		return TokenMessageIndex
	case OpChunkIndex:
		return TokenChunkIndex
	case OpAttachment:
		return TokenAttachment
	case OpAttachmentIndex:
		return TokenAttachmentIndex
	case OpStatistics:
		return TokenStatistics
	case OpMetadata:
		return TokenMetadata
	case OpMetadataIndex:
		return TokenMetadataIndex
	case OpSummaryOffset:
		return TokenSummaryOffset
	case OpDataEnd:
		return TokenDataEnd
	default:
		return TokenError
	}
}

// LexerOptions configures a Lexer. Grounded on go/mcap/lexer.go's
// LexerOptions.
type LexerOptions struct {
	// SkipMagic skips validating the leading 8-byte magic, for readers that
	// have already consumed or checked it.
	SkipMagic bool
	// ValidateCRC checks each chunk's UncompressedCRC against the bytes
	// produced by decompression, eagerly decompressing the whole chunk to do
	// so. When false, chunk bytes are decompressed lazily as the caller
	// reads from the returned io.Reader.
	ValidateCRC bool
	// EmitChunks, if true, surfaces Chunk records themselves rather than
	// transparently recursing into their contents. Used by summary loading
	// and by tools that copy chunks verbatim.
	EmitChunks bool
	// MaxDecompressedChunkSize bounds a chunk's declared uncompressed size;
	// zero means unbounded.
	MaxDecompressedChunkSize uint64
	// MaxRecordSize bounds any record's declared length (including a
	// chunk's own framing, before decompression); zero means unbounded.
	MaxRecordSize uint64
}

type decoders struct {
	zstd *zstd.Decoder
	lz4  *lz4.Reader
	none *bytes.Reader
}

// Lexer turns a byte stream into a sequence of records, transparently
// unwrapping Chunk records into their constituent Schema/Channel/Message
// records unless EmitChunks is set. Grounded on go/mcap/lexer.go.
type Lexer struct {
	basereader io.Reader
	reader     io.Reader
	emitChunks bool
	decoders   decoders
	inChunk    bool

	buf               []byte
	uncompressedChunk []byte

	validateCRC              bool
	maxRecordSize            uint64
	maxDecompressedChunkSize uint64

	lastReturnedReader io.Reader
}

// NewLexer constructs a Lexer reading from r.
func NewLexer(r io.Reader, opts *LexerOptions) (*Lexer, error) {
	if opts == nil {
		opts = &LexerOptions{}
	}
	lex := &Lexer{
		basereader:               r,
		reader:                   r,
		emitChunks:               opts.EmitChunks,
		validateCRC:              opts.ValidateCRC,
		maxRecordSize:            opts.MaxRecordSize,
		maxDecompressedChunkSize: opts.MaxDecompressedChunkSize,
		buf:                      make([]byte, 9),
	}
	if !opts.SkipMagic {
		magic := make([]byte, len(Magic))
		if _, err := io.ReadFull(r, magic); err != nil {
			return nil, fmt.Errorf("failed to read leading magic: %w", err)
		}
		if !bytes.Equal(magic, Magic) {
			return nil, &BadMagicError{Location: "start", Actual: magic}
		}
	}
	return lex, nil
}

// Next returns the next token, a reader over its (already-decoded, for
// Message/Schema/etc.) body, and the body's length. The returned reader is
// valid only until the next call to Next, which discards any unconsumed
// bytes from it automatically.
func (l *Lexer) Next(p []byte) (TokenType, io.Reader, int64, error) {
	if l.lastReturnedReader != nil {
		if err := discardAll(l.lastReturnedReader); err != nil {
			return TokenError, nil, 0, fmt.Errorf("failed to discard unread bytes: %w", err)
		}
		l.lastReturnedReader = nil
	}
	for {
		op, length, err := l.readRecordHeader()
		if err != nil {
			return TokenError, nil, 0, err
		}
		if l.maxRecordSize > 0 && length > l.maxRecordSize {
			return TokenError, nil, 0, fmt.Errorf("%w: %s record declares %d bytes", ErrRecordTooLarge, op, length)
		}
		if op == OpChunk && !l.emitChunks {
			if l.inChunk {
				return TokenError, nil, 0, ErrNestedChunk
			}
			if err := l.enterChunk(length); err != nil {
				return TokenError, nil, 0, err
			}
			continue
		}
		if len(p) > 0 && uint64(cap(p)) >= length {
			p = p[:length]
		} else if uint64(len(l.buf)) < length {
			buf, err := makeSafe(length)
			if err != nil {
				return TokenError, nil, 0, err
			}
			l.buf = buf
			p = l.buf
		} else {
			p = l.buf[:length]
		}
		if _, err := io.ReadFull(l.reader, p); err != nil {
			if l.inChunk && err == io.EOF {
				l.inChunk = false
				l.reader = l.basereader
				continue
			}
			return TokenError, nil, 0, &TruncatedRecordError{Opcode: op, Actual: 0, Expected: length}
		}
		reader := bytes.NewReader(p)
		l.lastReturnedReader = reader
		return opcodeToken(op), reader, int64(length), nil
	}
}

func (l *Lexer) readRecordHeader() (OpCode, uint64, error) {
	header := make([]byte, 9)
	n, err := io.ReadFull(l.reader, header)
	if err != nil {
		if l.inChunk && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			l.inChunk = false
			l.reader = l.basereader
			return l.readRecordHeader()
		}
		if n == 0 && err == io.EOF {
			return OpReserved, 0, io.EOF
		}
		// The closing magic after the Footer is shorter than a record
		// header; reaching it ends the record stream.
		if n == len(Magic) && bytes.Equal(header[:n], Magic) {
			return OpReserved, 0, io.EOF
		}
		return OpReserved, 0, &TruncatedRecordError{Opcode: OpCode(header[0]), Actual: n, lengthField: true}
	}
	op := OpCode(header[0])
	length := u64(header[1:])
	return op, length, nil
}

// enterChunk reads and validates a Chunk record's header, then switches
// l.reader to a decompressing reader over its record stream so that the
// caller's subsequent Next calls transparently walk the chunk's contents.
// Grounded on go/mcap/lexer.go's loadChunk.
func (l *Lexer) enterChunk(length uint64) error {
	header := make([]byte, 8+8+8+4+4)
	if _, err := io.ReadFull(l.reader, header); err != nil {
		return fmt.Errorf("failed to read chunk header: %w", err)
	}
	uncompressedSize, offset, err := getUint64(header, 16)
	if err != nil {
		return err
	}
	uncompressedCRC, offset, err := getUint32(header, offset)
	if err != nil {
		return err
	}
	compressionLen, offset, err := getUint32(header, offset)
	if err != nil {
		return err
	}
	compressionBuf := make([]byte, compressionLen)
	if _, err := io.ReadFull(l.reader, compressionBuf); err != nil {
		return fmt.Errorf("failed to read compression format: %w", err)
	}
	format := CompressionFormat(compressionBuf)
	recordsLenBuf := make([]byte, 8)
	if _, err := io.ReadFull(l.reader, recordsLenBuf); err != nil {
		return fmt.Errorf("failed to read chunk records length: %w", err)
	}
	recordsLen := u64(recordsLenBuf)

	consumed := uint64(len(header)) + uint64(compressionLen) + 8
	compressedLen := length - consumed
	if compressedLen != recordsLen && format == CompressionNone {
		return &UnexpectedTokenError{
			Opcode: OpChunk,
			Reason: fmt.Sprintf("uncompressed chunk declares records length %d but compressed length %d", recordsLen, compressedLen),
		}
	}
	if l.maxDecompressedChunkSize > 0 && uncompressedSize > l.maxDecompressedChunkSize {
		return fmt.Errorf("%w: chunk declares %d bytes", ErrChunkTooLarge, uncompressedSize)
	}

	compressed := io.LimitReader(l.reader, int64(compressedLen))
	if l.validateCRC && uncompressedCRC != 0 {
		buf, err := makeSafe(uncompressedSize)
		if err != nil {
			return err
		}
		decoder, err := l.getDecoder(format, compressed)
		if err != nil {
			return err
		}
		if _, err := io.ReadFull(decoder, buf); err != nil {
			return fmt.Errorf("failed to decompress chunk: %w", err)
		}
		if computed := crc32.ChecksumIEEE(buf); computed != uncompressedCRC {
			return fmt.Errorf("%w: chunk crc %d != declared %d", ErrCRCMismatch, computed, uncompressedCRC)
		}
		l.uncompressedChunk = buf
		l.reader = bytes.NewReader(buf)
	} else {
		decoder, err := l.getDecoder(format, compressed)
		if err != nil {
			return err
		}
		l.reader = decoder
	}
	l.inChunk = true
	return nil
}

func (l *Lexer) getDecoder(format CompressionFormat, r io.Reader) (io.Reader, error) {
	switch format {
	case CompressionNone, "":
		return r, nil
	case CompressionLZ4:
		if l.decoders.lz4 == nil {
			l.decoders.lz4 = lz4.NewReader(r)
		} else {
			l.decoders.lz4.Reset(r)
		}
		return l.decoders.lz4, nil
	case CompressionZSTD:
		if l.decoders.zstd == nil {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("failed to construct zstd decoder: %w", err)
			}
			l.decoders.zstd = dec
		} else if err := l.decoders.zstd.Reset(r); err != nil {
			return nil, fmt.Errorf("failed to reset zstd decoder: %w", err)
		}
		return l.decoders.zstd, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, format)
	}
}

// Close releases resources held by the lexer's decoders.
func (l *Lexer) Close() {
	if l.decoders.zstd != nil {
		l.decoders.zstd.Close()
	}
}

func discardAll(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}
