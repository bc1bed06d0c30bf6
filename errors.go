package mcap

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors. These correspond to the stable error-code list: IoError
// and InvalidFile surface as whatever the underlying io.Reader/Writer
// returns, wrapped with context via fmt.Errorf's %w.
var (
	// ErrBadMagic is InvalidMagic: the leading or trailing 8 bytes did not
	// match Magic.
	ErrBadMagic = errors.New("not an mcap file: bad magic")
	// ErrNestedChunk is InvalidRecord: a chunk opcode was encountered while
	// already lexing inside a chunk.
	ErrNestedChunk = errors.New("detected nested chunk")
	// ErrRecordTooLarge is InvalidRecord: a record's declared length
	// exceeded LexerOptions.MaxRecordSize.
	ErrRecordTooLarge = errors.New("record exceeds configured maximum size")
	// ErrChunkTooLarge is InvalidRecord: a chunk's declared uncompressed
	// size exceeded LexerOptions.MaxDecompressedChunkSize.
	ErrChunkTooLarge = errors.New("chunk exceeds configured maximum size")
	// ErrUnknownSchema is InvalidReference: WriteChannel referenced a
	// schema id the writer has not seen.
	ErrUnknownSchema = errors.New("unknown schema")
	// ErrUnknownChannel is InvalidReference: WriteMessage referenced a
	// channel id the writer has not seen.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrClosed is Closed: a Write* call was made on a Writer after Close
	// succeeded. A Writer whose earlier call failed is not marked closed,
	// and Reader methods do not return this error.
	ErrClosed = errors.New("mcap writer is closed")
	// ErrUnsupportedCompression is UnrecognizedCompression: a chunk or
	// chunk index named a compression format this engine does not
	// implement.
	ErrUnsupportedCompression = errors.New("unsupported compression format")
	// ErrMissingStatistics is MissingStatistics: NoFallbackScan summary
	// loading succeeded but found no Statistics record.
	ErrMissingStatistics = errors.New("summary section has no statistics record")
	// ErrMissingFooter is MissingFooter: the last record before the
	// closing magic was not a Footer.
	ErrMissingFooter = errors.New("expected footer record")
	// ErrNotSeekable is UnsupportedOperation: an operation that requires
	// random access was attempted on a stream-only source, an indexed
	// iterator was requested for an Info without a usable chunk index, or
	// an unindexed read was requested in an order other than FileOrder.
	ErrNotSeekable = errors.New("operation requires a seekable source")
	// ErrLengthOutOfRange is InvalidRecord: a length prefix exceeded the
	// representable int32 range used for buffer sizing.
	ErrLengthOutOfRange = errors.New("length out of int32 range")
	// ErrAttachmentDataIncomplete is returned by AttachmentReader.Verify
	// when called before Read has reached the end of the attachment data.
	ErrAttachmentDataIncomplete = errors.New("attachment data not fully consumed")
	// ErrCRCMismatch is CrcMismatch: a record's computed CRC did not match
	// its parsed CRC field.
	ErrCRCMismatch = errors.New("crc mismatch")
)

// TruncatedRecordError is TruncatedRecord: fewer bytes were available than
// the record's declared length required.
type TruncatedRecordError struct {
	Opcode      OpCode
	Actual      int
	Expected    uint64
	lengthField bool
}

func (e *TruncatedRecordError) Error() string {
	if e.lengthField {
		return fmt.Sprintf(
			"mcap truncated in record length field after %s opcode (0x%02x), received %d bytes",
			e.Opcode, byte(e.Opcode), e.Actual,
		)
	}
	return fmt.Sprintf(
		"mcap truncated in %s (0x%02x) record content: expected %d bytes, got %d",
		e.Opcode, byte(e.Opcode), e.Expected, e.Actual,
	)
}

// Is matches any *TruncatedRecordError, ignoring field values, which lets
// callers write errors.Is(err, &TruncatedRecordError{}).
func (e *TruncatedRecordError) Is(target error) bool {
	_, ok := target.(*TruncatedRecordError)
	return ok
}

// Unwrap exposes io.ErrUnexpectedEOF so callers checking for a generic
// truncation still match.
func (e *TruncatedRecordError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// BadMagicError is InvalidMagic with the offending bytes and their location
// attached.
type BadMagicError struct {
	Location string
	Actual   []byte
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("invalid magic at %s of file: found %v", e.Location, e.Actual)
}

func (e *BadMagicError) Is(target error) bool {
	if target == ErrBadMagic {
		return true
	}
	_, ok := target.(*BadMagicError)
	return ok
}

// UnexpectedTokenError is InvalidRecord: a token type was encountered where
// the caller's parsing state did not allow it (e.g. a Message token before
// any Channel).
type UnexpectedTokenError struct {
	Opcode OpCode
	Reason string
}

func (e *UnexpectedTokenError) Error() string {
	return fmt.Sprintf("unexpected %s record: %s", e.Opcode, e.Reason)
}

func (e *UnexpectedTokenError) Is(target error) bool {
	_, ok := target.(*UnexpectedTokenError)
	return ok
}
