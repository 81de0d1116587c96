package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrTextTooShort      = errors.New("extracted text is too short")
	ErrNotFound          = errors.New("not found")
)
