package util

import (
	"strings"
)

// maxSplitIterations bounds the scan loop against pathological inputs.
// Hitting it is recoverable: chunks produced so far are returned.
const maxSplitIterations = 100000

// SplitText splits text into overlapping segments of at most chunkSize runes,
// preferring to end a segment at the last sentence terminator or newline past
// the midpoint so chunks stay semantically coherent. Returned segments are
// trimmed and non-empty; consecutive segments overlap by up to overlap runes.
// The second return value reports whether the iteration ceiling cut the scan
// short, leaving the tail of the input unchunked.
func SplitText(text string, chunkSize, overlap int) ([]string, bool) {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	iterations := 0
	truncated := false
	for start < len(runes) {
		iterations++
		if iterations > maxSplitIterations {
			truncated = true
			break
		}
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if end < len(runes) {
			if bp := lastBreak(runes, end); bp > start+chunkSize/2 {
				end = bp + 1
			}
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out, truncated
}

// lastBreak returns the index of the last '.' or '\n' at or before end,
// or -1 when there is none.
func lastBreak(runes []rune, end int) int {
	for i := end; i >= 0; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
