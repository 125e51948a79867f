package search

import (
	"context"

	"github.com/stashkit/retrieval/internal/domain"
)

// VectorIndex answers nearest-neighbor queries over embedded items.
type VectorIndex interface {
	Query(ctx context.Context, embedding []float32, limit int) ([]domain.VectorHit, error)
}

// TextSearcher runs lexical full-text search in the relational store.
type TextSearcher interface {
	SearchByText(ctx context.Context, query string, limit int, filters domain.SearchFilters) ([]domain.TextHit, error)
}

// HistoryRecorder persists search analytics entries.
type HistoryRecorder interface {
	RecordSearchHistory(ctx context.Context, query string, resultCount int) error
}
