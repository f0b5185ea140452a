package stream

import (
	"strings"
	"unicode/utf8"
)

// DecodeFunc turns one received chunk into a value to publish.
// A false result means nothing is published for the chunk.
// The chunk slice is reused after the call returns.
type DecodeFunc[Out any] func(p []byte) (Out, bool)

// EncodeFunc turns a received value into bytes for the wire.
type EncodeFunc[In any] func(v In) ([]byte, error)

// Bytes publishes every chunk unchanged.
func Bytes() DecodeFunc[[]byte] {
	return func(p []byte) ([]byte, bool) {
		if len(p) == 0 {
			return nil, false
		}
		out := make([]byte, len(p))
		copy(out, p)
		return out, true
	}
}

// Text decodes chunks as UTF-8. A multi-byte character split across two
// chunks is held back and completed by the next chunk. Invalid sequences
// are replaced with U+FFFD.
func Text() DecodeFunc[string] {
	var pending []byte
	return func(p []byte) (string, bool) {
		buf := append(pending, p...)
		cut := completePrefix(buf)
		pending = append([]byte(nil), buf[cut:]...)
		if cut == 0 {
			return "", false
		}
		return strings.ToValidUTF8(string(buf[:cut]), "\uFFFD"), true
	}
}

// completePrefix returns the length of buf without a trailing incomplete rune.
func completePrefix(buf []byte) int {
	n := len(buf)
	// A rune is at most 4 bytes, so only the last 3 can start an incomplete one.
	for i := n - 1; i >= 0 && i >= n-3; i-- {
		c := buf[i]
		if c < utf8.RuneSelf {
			return n
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(buf[i:]) {
				return i
			}
			return n
		}
	}
	return n
}

// RawBytes writes byte slices unchanged.
func RawBytes() EncodeFunc[[]byte] {
	return func(v []byte) ([]byte, error) {
		return v, nil
	}
}

// TextEncoder writes strings as UTF-8.
func TextEncoder() EncodeFunc[string] {
	return func(v string) ([]byte, error) {
		return []byte(v), nil
	}
}
