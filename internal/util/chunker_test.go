package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitTextEmptyInput(t *testing.T) {
	chunks, truncated := SplitText("", 1000, 100)
	require.Empty(t, chunks)
	require.False(t, truncated)

	chunks, _ = SplitText("   \n\t  ", 1000, 100)
	require.Empty(t, chunks)
}

func TestSplitTextShortInput(t *testing.T) {
	chunks, truncated := SplitText("a short piece of text", 1000, 100)
	require.Len(t, chunks, 1)
	require.Equal(t, "a short piece of text", chunks[0])
	require.False(t, truncated)
}

func TestSplitTextUnbrokenTextProducesOverlappingChunks(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks, _ := SplitText(text, 1000, 100)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 1000)
	require.Len(t, chunks[1], 1000)
	require.Len(t, chunks[2], 700)
}

func TestSplitTextSnapsToSentenceBoundary(t *testing.T) {
	text := strings.Repeat("a", 15) + ". " + strings.Repeat("b", 10)
	chunks, _ := SplitText(text, 20, 0)
	require.Len(t, chunks, 2)
	require.True(t, strings.HasSuffix(chunks[0], "."))
	require.Equal(t, strings.Repeat("b", 10), chunks[1])
}

func TestSplitTextIgnoresEarlyBreakpoint(t *testing.T) {
	// A terminator before the midpoint must not shrink the chunk.
	text := "ab. " + strings.Repeat("c", 30)
	chunks, _ := SplitText(text, 20, 0)
	require.GreaterOrEqual(t, len(chunks[0]), 10)
}

func TestSplitTextAlwaysAdvances(t *testing.T) {
	text := strings.Repeat("x", 200)
	chunks, truncated := SplitText(text, 5, 4)
	require.NotEmpty(t, chunks)
	require.False(t, truncated)
	// Near-total overlap still walks the whole input.
	last := chunks[len(chunks)-1]
	require.True(t, strings.HasSuffix(text, last))
}

func TestSplitTextReportsIterationCeiling(t *testing.T) {
	// One-rune steps (size 5, overlap 4) exhaust the ceiling before the
	// input does.
	text := strings.Repeat("z", maxSplitIterations+100)
	chunks, truncated := SplitText(text, 5, 4)
	require.True(t, truncated)
	require.Len(t, chunks, maxSplitIterations)
}

func TestSplitTextDefaultsOnInvalidParams(t *testing.T) {
	text := strings.Repeat("y", 1500)
	chunks, _ := SplitText(text, 0, -5)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 1000)
}

func TestSplitTextMultibyteRunes(t *testing.T) {
	text := strings.Repeat("é", 1200)
	chunks, _ := SplitText(text, 1000, 0)
	require.Len(t, chunks, 2)
	require.Equal(t, 1000, len([]rune(chunks[0])))
	require.Equal(t, 200, len([]rune(chunks[1])))
}
