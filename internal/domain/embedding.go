package domain

import "context"

// EmbeddingResult is the outcome of a single embedding call. Truncation and
// length fields are observability data; only the vector is persisted.
type EmbeddingResult struct {
	Vector       []float32
	Truncated    bool
	OriginalLen  int
	ProcessedLen int
}

// Embedder produces fixed-dimension vectors for text.
type Embedder interface {
	// Embed turns text into a vector. Implementations own truncation and
	// retry behavior; callers treat the call as a single attempt.
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	// Available reports whether a provider credential is configured at all.
	// Absence is a pre-check outcome, not an error.
	Available() bool
	// ModelName identifies the embedding model, used for cache keying.
	ModelName() string
}
