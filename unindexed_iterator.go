package mcap

import (
	"fmt"
	"io"
)

// unindexedMessageIterator walks the data section with a transparently
// chunk-decoding Lexer, delivering messages in file order only. Used when
// no index is available (a stream-only source, or ReadOptions.UseIndex ==
// false), per §4.8. Ordering other than FileOrder is rejected by
// NewUnindexedMessageIterator (and, when UseIndex is false, already by
// ReadOptions.Finalize), so this type never needs to buffer or sort.
type unindexedMessageIterator struct {
	lex      *Lexer
	opts     *ReadOptions
	schemas  slicemap[Schema]
	channels slicemap[Channel]
}

// NewUnindexedMessageIterator constructs an unindexedMessageIterator
// reading from r.
func NewUnindexedMessageIterator(r io.Reader, opts *ReadOptions) (MessageIterator, error) {
	if opts.Order != FileOrder {
		return nil, fmt.Errorf("%w: unindexed reads only support FileOrder", ErrNotSeekable)
	}
	lex, err := NewLexer(r, &LexerOptions{EmitChunks: false})
	if err != nil {
		return nil, err
	}
	return &unindexedMessageIterator{lex: lex, opts: opts}, nil
}

func (it *unindexedMessageIterator) Next() (*Schema, *Channel, *Message, error) {
	buf := make([]byte, 0)
	for {
		tok, r, n, err := it.lex.Next(buf)
		if err != nil {
			return nil, nil, nil, err
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, nil, nil, err
		}
		switch tok {
		case TokenSchema:
			s, err := ParseSchema(data)
			if err != nil {
				return nil, nil, nil, err
			}
			it.schemas.set(s.ID, s)
		case TokenChannel:
			c, err := ParseChannel(data)
			if err != nil {
				return nil, nil, nil, err
			}
			it.channels.set(c.ID, c)
		case TokenMessage:
			msg, err := ParseMessage(data)
			if err != nil {
				return nil, nil, nil, err
			}
			if !it.opts.includesTime(msg.LogTime) {
				continue
			}
			channel := it.channels.get(msg.ChannelID)
			if channel != nil && !it.opts.includesTopic(channel.Topic) {
				continue
			}
			var schema *Schema
			if channel != nil && channel.SchemaID != 0 {
				schema = it.schemas.get(channel.SchemaID)
			}
			return schema, channel, msg, nil
		}
	}
}

func (it *unindexedMessageIterator) Close() {
	it.lex.Close()
}
