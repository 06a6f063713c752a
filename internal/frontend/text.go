package frontend

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidEncoding means the input is not well-formed UTF-8.
var ErrInvalidEncoding = errors.New("invalid utf-8 input")

// Text decodes UTF-8 plain text. Invalid byte sequences are rejected rather
// than replaced so a reconstruction is always byte-exact.
type Text struct{}

// Decode reads the raw content and returns its code points in order.
func (Text) Decode(r io.Reader) ([]rune, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	runes := make([]rune, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		runes = append(runes, r)
		data = data[size:]
	}
	return runes, nil
}

// MIME returns the media type this frontend produces streams for.
func (Text) MIME() string {
	return "text/plain"
}
