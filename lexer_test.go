package mcap

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexerRejectsBadMagic(t *testing.T) {
	_, err := NewLexer(bytes.NewReader([]byte("not an mcap file")), &LexerOptions{})
	require.Error(t, err)
	var badMagic *BadMagicError
	require.ErrorAs(t, err, &badMagic)
}

func TestLexerEmitsChunksWhenConfigured(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64, Compression: CompressionNone})
	lex, err := NewLexer(bytes.NewReader(data), &LexerOptions{EmitChunks: true})
	require.NoError(t, err)
	var sawChunk bool
	for {
		tok, r, n, err := lex.Next(nil)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if tok == TokenChunk {
			sawChunk = true
		}
		_, err = io.CopyN(io.Discard, r, n)
		require.NoError(t, err)
	}
	assert.True(t, sawChunk)
}

func TestLexerTransparentlyDecodesChunks(t *testing.T) {
	data := writeFixture(t, &WriterOptions{Chunked: true, ChunkSize: 64, Compression: CompressionZSTD})
	lex, err := NewLexer(bytes.NewReader(data), &LexerOptions{EmitChunks: false})
	require.NoError(t, err)
	var messages int
	for {
		tok, r, n, err := lex.Next(nil)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NotEqual(t, TokenChunk, tok)
		if tok == TokenMessage {
			messages++
		}
		_, err = io.CopyN(io.Discard, r, n)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, messages)
}

func TestLexerEnforcesMaxRecordSize(t *testing.T) {
	data := writeFixture(t, &WriterOptions{})
	lex, err := NewLexer(bytes.NewReader(data), &LexerOptions{MaxRecordSize: 4})
	require.NoError(t, err)
	_, _, _, err = lex.Next(nil)
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}
