package frontend

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the text layer of a PDF document. Layout and images are
// discarded; only the plain text stream survives, so PDF content is
// inherently sparse and cannot be reconstructed byte-exactly.
type PDF struct{}

// Decode reads the raw content and returns the code points of its text layer.
func (PDF) Decode(r io.Reader) ([]rune, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}

	text := builder.String()
	runes := make([]rune, 0, len(text))
	for _, r := range text {
		if r == utf8.RuneError {
			continue
		}
		runes = append(runes, r)
	}
	return runes, nil
}

// MIME returns the media type this frontend produces streams for.
func (PDF) MIME() string {
	return "application/pdf"
}
