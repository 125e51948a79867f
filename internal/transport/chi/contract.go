package chi

import (
	"context"

	"github.com/stashkit/retrieval/internal/domain"
)

// ItemStore is the slice of the relational store the HTTP layer needs.
type ItemStore interface {
	Create(ctx context.Context, item *domain.CapturedItem) error
	GetByID(ctx context.Context, id string) (*domain.CapturedItem, error)
	Delete(ctx context.Context, id string) error
}

// Pipeline schedules embedding work for newly captured items.
type Pipeline interface {
	ProcessAsync(item domain.CapturedItem)
}

// VectorDeleter removes an item's vector record when the item is deleted.
type VectorDeleter interface {
	Delete(ctx context.Context, id string) error
}
