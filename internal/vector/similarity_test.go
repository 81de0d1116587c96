package vector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

func TestCosineSelfSimilarity(t *testing.T) {
	v := []float32{0.3, 0.5, 0.1}
	require.InDelta(t, 1.0, Cosine(v, v), 1e-6)
}

func TestCosineOrthogonal(t *testing.T) {
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
}

func TestCosineZeroAndMismatched(t *testing.T) {
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
	require.Zero(t, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	require.Zero(t, Cosine(nil, nil))
}

func TestRankOrdersByScore(t *testing.T) {
	query := []float32{1, 0}
	chunks := []models.Chunk{
		{ID: "far", Embedding: []float32{0, 1}},
		{ID: "near", Embedding: []float32{1, 0.01}},
		{ID: "mid", Embedding: []float32{1, 1}},
		{ID: "noembed"},
	}
	ranked := Rank(query, chunks, 10)
	require.Len(t, ranked, 3)
	require.Equal(t, "near", ranked[0].Chunk.ID)
	require.Equal(t, "mid", ranked[1].Chunk.ID)
	require.Equal(t, "far", ranked[2].Chunk.ID)
}

func TestRankRespectsLimit(t *testing.T) {
	query := []float32{1, 0}
	chunks := []models.Chunk{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0.9, 0.1}},
		{ID: "c", Embedding: []float32{0.5, 0.5}},
	}
	ranked := Rank(query, chunks, 1)
	require.Len(t, ranked, 1)
	require.Equal(t, "a", ranked[0].Chunk.ID)
}

func TestVectorLiteralRoundTrip(t *testing.T) {
	v := []float32{0.125, -1.5, 3}
	got, err := FromLiteral(ToLiteral(v))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range v {
		require.InDelta(t, v[i], got[i], 1e-5)
	}
}

func TestFromLiteralRejectsMalformed(t *testing.T) {
	_, err := FromLiteral("0.1,0.2")
	require.Error(t, err)
	_, err = FromLiteral("[0.1,abc]")
	require.Error(t, err)
}

func TestFromLiteralEmpty(t *testing.T) {
	got, err := FromLiteral("[]")
	require.NoError(t, err)
	require.Empty(t, got)
}
