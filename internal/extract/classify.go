package extract

import (
	"errors"
	"strings"

	"docchat/internal/util"
)

type FailureKind string

const (
	FailureCorrupted   FailureKind = "corrupted"
	FailureEncrypted   FailureKind = "password-protected"
	FailureNoText      FailureKind = "image-only"
	FailureUnsupported FailureKind = "unsupported-format"
	FailureUnknown     FailureKind = "unknown"
)

// Classify maps an extraction error onto a user-facing failure kind and
// message. Raw parser errors are often unhelpful, so known shapes are mapped
// to friendly text; anything unrecognized keeps the original message.
func Classify(err error) (FailureKind, string) {
	if err == nil {
		return FailureUnknown, ""
	}
	msg := strings.ToLower(err.Error())
	// Activity errors arrive re-wrapped, so sentinel matching needs a
	// message fallback.
	if errors.Is(err, util.ErrNoExtractableText) || errors.Is(err, util.ErrTextTooShort) ||
		strings.Contains(msg, "no extractable text") || strings.Contains(msg, "too short") {
		return FailureNoText, "The PDF contains no readable text. It may be a scanned or image-only document."
	}
	switch {
	case strings.Contains(msg, "encrypted") || strings.Contains(msg, "password"):
		return FailureEncrypted, "The PDF is password-protected and cannot be processed."
	case strings.Contains(msg, "malformed") || strings.Contains(msg, "corrupt") || strings.Contains(msg, "invalid pdf") || strings.Contains(msg, "unexpected eof") || strings.Contains(msg, "bad xref"):
		return FailureCorrupted, "The PDF appears to be corrupted and could not be read."
	case strings.Contains(msg, "not a pdf") || strings.Contains(msg, "unsupported"):
		return FailureUnsupported, "The file is not a supported PDF document."
	default:
		return FailureUnknown, "PDF processing failed: " + err.Error()
	}
}
