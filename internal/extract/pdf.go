package extract

import (
	"fmt"
	"io"
	"strings"

	"docchat/internal/util"

	"github.com/ledongthuc/pdf"
)

type Result struct {
	Text      string
	PageCount int
}

// FromFile extracts plain text from the PDF at path. The text is sanitized
// for storage; an extraction that yields fewer than minChars characters is
// treated as a failure (image-only or unreadable document).
func FromFile(path string, minChars int) (Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return Result{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return Result{}, util.ErrNoExtractableText
	}
	if len(text) < minChars {
		return Result{}, fmt.Errorf("%w: got %d characters", util.ErrTextTooShort, len(text))
	}
	return Result{Text: text, PageCount: r.NumPage()}, nil
}
