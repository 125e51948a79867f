package pipeline

import (
	"context"

	"github.com/stashkit/retrieval/internal/domain"
)

// Indexer writes vector records for successfully embedded items.
type Indexer interface {
	Upsert(ctx context.Context, rec *domain.VectorRecord) error
}

// ItemStore is the slice of the relational store the pipeline needs:
// status writes and the failed-item reset that feeds the retry sweep.
type ItemStore interface {
	UpdateEmbeddingStatus(ctx context.Context, id, ownerID string, status domain.EmbeddingStatus) error
	ResetFailed(ctx context.Context, limit int) ([]domain.CapturedItem, error)
}
