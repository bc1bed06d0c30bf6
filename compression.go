package mcap

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionLevel is a speed/ratio tradeoff knob independent of
// CompressionFormat, mapped onto each codec's own level scale. Grounded on
// go/mcap/compression_level.go.
type CompressionLevel int

const (
	CompressionLevelFastest CompressionLevel = -20
	CompressionLevelFast    CompressionLevel = -10
	CompressionLevelDefault CompressionLevel = 0
	CompressionLevelSlow    CompressionLevel = 10
	CompressionLevelSlowest CompressionLevel = 20
)

func (l CompressionLevel) zstdLevel() zstd.EncoderLevel {
	switch {
	case l <= CompressionLevelFastest:
		return zstd.SpeedFastest
	case l <= CompressionLevelFast:
		return zstd.SpeedFastest
	case l <= CompressionLevelDefault:
		return zstd.SpeedDefault
	case l <= CompressionLevelSlow:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (l CompressionLevel) lz4Level() lz4.CompressionLevel {
	switch {
	case l <= CompressionLevelFastest:
		return lz4.Fast
	case l <= CompressionLevelFast:
		return lz4.Fast
	case l <= CompressionLevelDefault:
		return lz4.Level3
	case l <= CompressionLevelSlow:
		return lz4.Level7
	default:
		return lz4.Level9
	}
}

// newCompressedWriter builds the resettableWriteCloser that chunk flushing
// writes compressed bytes through, for the given format and level. Grounded
// on go/mcap/writer.go's NewWriter, which builds this once per Writer and
// Resets it onto a fresh buffer for each chunk rather than reallocating.
func newCompressedWriter(format CompressionFormat, level CompressionLevel, buf *bytes.Buffer) (resettableWriteCloser, error) {
	switch format {
	case CompressionNone, "":
		return &bufCloser{b: buf}, nil
	case CompressionLZ4:
		w := lz4.NewWriter(buf)
		if err := w.Apply(lz4.CompressionLevelOption(level.lz4Level())); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return w, nil
	case CompressionZSTD:
		w, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(level.zstdLevel()))
		if err != nil {
			return nil, fmt.Errorf("failed to construct zstd writer: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, format)
	}
}

// newDecompressReader returns a fresh decompressor reading from r for
// the given chunk compression format. The indexed iterator calls it once
// per chunk it opens; the Lexer does not use it and instead keeps its own
// reusable decoders (see Lexer.getDecoder).
func newDecompressReader(format CompressionFormat, r io.Reader) (io.Reader, error) {
	switch format {
	case CompressionNone, "":
		return r, nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	case CompressionZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to construct zstd reader: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, format)
	}
}
