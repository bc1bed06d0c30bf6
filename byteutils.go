package mcap

import (
	"encoding/binary"
	"io"
)

// This file implements §4.1's byte codec: little-endian fixed-width
// integers and length-prefixed string/bytes, over a plain []byte buffer.
// Get* functions read; put* functions write. Both report the offset
// immediately following the value they handled, so callers thread offsets
// through a sequence of calls without recomputing field widths.

func getUint16(buf []byte, offset int) (x uint16, newOffset int, err error) {
	if offset < 0 || offset > len(buf)-2 {
		return 0, 0, io.ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(buf[offset:]), offset + 2, nil
}

func getUint32(buf []byte, offset int) (x uint32, newOffset int, err error) {
	if offset < 0 || offset > len(buf)-4 {
		return 0, 0, io.ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(buf[offset:]), offset + 4, nil
}

func getUint64(buf []byte, offset int) (x uint64, newOffset int, err error) {
	if offset < 0 || offset > len(buf)-8 {
		return 0, 0, io.ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(buf[offset:]), offset + 8, nil
}

func getPrefixedBytes(buf []byte, offset int) (s []byte, newOffset int, err error) {
	length, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, 0, err
	}
	if offset > len(buf)-int(length) {
		return nil, 0, io.ErrShortBuffer
	}
	return buf[offset : offset+int(length)], offset + int(length), nil
}

func getPrefixedString(buf []byte, offset int) (s string, newOffset int, err error) {
	raw, offset, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return "", 0, err
	}
	return string(raw), offset, nil
}

// getPrefixedMap decodes a map<string,string>: a u32 total-byte-length of
// the encoded pairs, followed by that many bytes of (string,string) pairs.
// Duplicate keys are an error.
func getPrefixedMap(buf []byte, offset int) (m map[string]string, newOffset int, err error) {
	bodyLen, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, 0, err
	}
	end := offset + int(bodyLen)
	if end > len(buf) {
		return nil, 0, io.ErrShortBuffer
	}
	m = make(map[string]string)
	cursor := offset
	for cursor < end {
		var key, value string
		key, cursor, err = getPrefixedString(buf, cursor)
		if err != nil {
			return nil, 0, err
		}
		value, cursor, err = getPrefixedString(buf, cursor)
		if err != nil {
			return nil, 0, err
		}
		if _, dup := m[key]; dup {
			return nil, 0, &UnexpectedTokenError{Reason: "duplicate key " + key + " in map"}
		}
		m[key] = value
	}
	return m, end, nil
}

func putByte(buf []byte, x byte) int {
	buf[0] = x
	return 1
}

func putUint16(buf []byte, x uint16) int {
	binary.LittleEndian.PutUint16(buf, x)
	return 2
}

func putUint32(buf []byte, x uint32) int {
	binary.LittleEndian.PutUint32(buf, x)
	return 4
}

func putUint64(buf []byte, x uint64) int {
	binary.LittleEndian.PutUint64(buf, x)
	return 8
}

func putPrefixedString(buf []byte, s string) int {
	offset := putUint32(buf, uint32(len(s)))
	offset += copy(buf[offset:], s)
	return offset
}

func putPrefixedBytes(buf []byte, b []byte) int {
	offset := putUint32(buf, uint32(len(b)))
	offset += copy(buf[offset:], b)
	return offset
}

func u64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
