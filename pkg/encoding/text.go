// Package encoding provides text encoding utilities for MMD file formats.
package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Text identifies the character encoding of a string field.
type Text uint8

const (
	UTF16LE  Text = 0 // PMX header encoding byte 0
	UTF8     Text = 1 // PMX header encoding byte 1
	ShiftJIS Text = 2 // VMD names
)

// String returns a human-readable encoding name.
func (t Text) String() string {
	switch t {
	case UTF16LE:
		return "UTF-16LE"
	case UTF8:
		return "UTF-8"
	case ShiftJIS:
		return "Shift_JIS"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

func (t Text) codec() encoding.Encoding {
	switch t {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case ShiftJIS:
		return japanese.ShiftJIS
	default:
		return nil
	}
}

// Decode converts bytes in encoding t to a UTF-8 string.
// Returns the raw bytes as a string if conversion fails.
func Decode(t Text, data []byte) string {
	codec := t.codec()
	if codec == nil {
		return string(data)
	}
	result, _, err := transform.Bytes(codec.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// Encode converts a UTF-8 string to bytes in encoding t.
// Returns the UTF-8 bytes if conversion fails.
func Encode(t Text, s string) []byte {
	codec := t.codec()
	if codec == nil {
		return []byte(s)
	}
	result, _, err := transform.Bytes(codec.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// FixedStringToUTF8 decodes a fixed-size, zero-padded field.
// Decoding stops at the first zero byte.
func FixedStringToUTF8(t Text, data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return Decode(t, data)
}

// UTF8ToFixedString encodes s into a zero-padded field of the given size.
// Input longer than size is cut at the last complete character that fits.
func UTF8ToFixedString(t Text, s string, size int) []byte {
	result := make([]byte, size)
	encoded := Encode(t, s)
	for len(encoded) > size && s != "" {
		_, n := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-n]
		encoded = Encode(t, s)
	}
	copy(result, encoded)
	return result
}

// NormalizePath normalizes an asset path for case-insensitive lookup.
// Model files reference textures with Windows separators.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")
	return strings.ToLower(path)
}
