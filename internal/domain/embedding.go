package domain

import "context"

// EmbeddingProvider is the interface for text embedding backends.
type EmbeddingProvider interface {
	// Embed generates embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the dimensionality of the embedding vectors.
	Dimensions() int
	// Name returns the provider's identifier (e.g., "openai").
	Name() string
}

// SimilarityHit is one result from an embedding index lookup.
type SimilarityHit struct {
	ID    string
	Score float64
}

// EmbeddingIndex answers nearest-neighbor queries over precomputed
// agent-pattern embeddings. Optional: only wired when vector-based
// semantic selection is configured.
type EmbeddingIndex interface {
	// Similar returns the top-k entries most similar to the vector,
	// best first.
	Similar(ctx context.Context, vector []float32, topK int) ([]SimilarityHit, error)
}
