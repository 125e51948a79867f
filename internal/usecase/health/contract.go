package health

import (
	"context"

	"github.com/stashkit/retrieval/internal/domain"
)

// IndexStats probes the vector index with a lightweight count call.
type IndexStats interface {
	Stats(ctx context.Context) domain.IndexStats
}

// StorePinger checks relational store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker reports whether an embedding credential is configured.
type ProviderChecker interface {
	Available() bool
}
