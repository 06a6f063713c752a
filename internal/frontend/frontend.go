// Package frontend converts external content formats into code point
// streams. Each frontend reduces its input to plain text; everything past
// that point works on Unicode code points only.
package frontend

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat means no frontend knows how to decode the input.
var ErrUnsupportedFormat = errors.New("unsupported content format")

// Frontend decodes one content format into a code point stream.
type Frontend interface {
	// Decode reads the raw content and returns its code points in order.
	Decode(r io.Reader) ([]rune, error)

	// MIME returns the media type this frontend produces streams for.
	MIME() string
}

// ForPath selects a frontend from a file path's extension.
func ForPath(path string) (Frontend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".text", "":
		return Text{}, nil
	case ".pdf":
		return PDF{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
