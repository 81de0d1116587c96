package providers

import (
	"context"
	"fmt"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation string   `json:"operation"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

// fitDimension pads a model vector with zeros up to dim. A model that
// produces more components than the index dimension is a configuration
// error, not something padding can fix.
func fitDimension(v []float32, dim int) ([]float32, error) {
	if dim <= 0 || len(v) == dim {
		return v, nil
	}
	if len(v) > dim {
		return nil, fmt.Errorf("embedding dimension %d exceeds configured dimension %d", len(v), dim)
	}
	out := make([]float32, dim)
	copy(out, v)
	return out, nil
}
