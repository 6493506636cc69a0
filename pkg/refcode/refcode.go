// Package refcode encodes instruction ids into the length-limited remark field
// of a rail transaction and recovers them from whatever the rail echoes back.
//
// Format: <base62 id>[:<free text>]. Rails may transmit full-width characters,
// so decoding narrows the remark before parsing.
package refcode

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	base     = int64(len(alphabet))

	// Delimiter separates the encoded id from the human note.
	Delimiter = ":"
	// DefaultLimit is the most common remark field budget in bytes.
	DefaultLimit = 50
)

var (
	ErrInvalidID = errors.New("refcode: instruction id must be positive")
	ErrTooLong   = errors.New("refcode: encoded id exceeds remark limit")
)

var digitValue [256]int8

func init() {
	for i := range digitValue {
		digitValue[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		digitValue[alphabet[i]] = int8(i)
	}
}

// EncodeID returns the base-62 form of a positive id.
func EncodeID(id int64) string {
	if id == 0 {
		return "0"
	}
	var buf [11]byte // 62^11 > MaxInt64
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = alphabet[id%base]
		id /= base
	}
	return string(buf[i:])
}

// Encode builds a remark for the instruction id, appending note when the
// limit leaves room. The note is cut on a rune boundary to fit.
func Encode(id int64, note string, limit int) (string, error) {
	if id <= 0 {
		return "", ErrInvalidID
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	token := EncodeID(id)
	if len(token) > limit {
		return "", ErrTooLong
	}
	room := limit - len(token) - len(Delimiter)
	if note == "" || room <= 0 {
		return token, nil
	}
	return token + Delimiter + truncate(note, room), nil
}

// Decode extracts the instruction id from a remark. It reports false when the
// leading token is empty, holds characters outside the alphabet, overflows, or
// decodes to zero.
func Decode(remark string) (int64, bool) {
	narrowed := strings.TrimSpace(width.Narrow.String(remark))
	token, _, _ := strings.Cut(narrowed, Delimiter)
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}

	var id int64
	for i := 0; i < len(token); i++ {
		d := int64(digitValue[token[i]])
		if d < 0 {
			return 0, false
		}
		if id > (math.MaxInt64-d)/base {
			return 0, false
		}
		id = id*base + d
	}
	if id <= 0 {
		return 0, false
	}
	return id, true
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i, r := range s {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = 1
		}
		if i+size > maxBytes {
			break
		}
		cut = i + size
	}
	return s[:cut]
}
