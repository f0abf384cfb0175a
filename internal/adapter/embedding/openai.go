// Package embedding provides embedding providers and the in-memory
// similarity index used for vector-based agent selection.
package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"concierge/internal/domain"
)

const defaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// text-embedding-3-small dimensionality.
const defaultDimensions = 1536

// OpenAIEmbedder implements domain.EmbeddingProvider using the OpenAI
// embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder. Empty model selects
// text-embedding-3-small.
func NewOpenAIEmbedder(model string, apiKey string) *OpenAIEmbedder {
	client := openai.NewClient()
	if apiKey != "" {
		client = openai.NewClient(option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &OpenAIEmbedder{client: client, model: model, dims: defaultDimensions}
}

// Embed implements domain.EmbeddingProvider.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", domain.ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d vectors for %d texts",
			domain.ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	if len(out) > 0 {
		e.dims = len(out[0])
	}
	return out, nil
}

// Dimensions implements domain.EmbeddingProvider.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// Name implements domain.EmbeddingProvider.
func (e *OpenAIEmbedder) Name() string { return "openai" }

// Compile-time interface check.
var _ domain.EmbeddingProvider = (*OpenAIEmbedder)(nil)
