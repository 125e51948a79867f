// Package pipeline runs the asynchronous embedding pipeline: extract text
// from a captured item, embed it, upsert the vector record, and track the
// item's embedding status. Runs are fire-and-forget; failures mark the item
// failed and are picked up later by the retry sweep.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/domain"
	"github.com/stashkit/retrieval/internal/metrics"
	"github.com/stashkit/retrieval/internal/usecase/extract"
)

// processTimeout bounds a single detached pipeline run, covering provider
// retries with room to spare.
const processTimeout = 2 * time.Minute

// lockStripes is the size of the striped lock table serializing runs for
// the same item id.
const lockStripes = 64

// Service executes embedding pipeline runs on a shared worker pool.
type Service struct {
	embed      domain.Embedder
	index      Indexer
	items      ItemStore
	pool       *ants.Pool
	retryBatch int
	logger     *zap.Logger

	locks [lockStripes]sync.Mutex
}

// New creates a pipeline service. The pool is owned by the caller;
// retryBatch caps how many failed items one sweep re-enqueues.
func New(
	embed domain.Embedder, index Indexer, items ItemStore,
	pool *ants.Pool, retryBatch int, logger *zap.Logger,
) *Service {
	return &Service{
		embed:      embed,
		index:      index,
		items:      items,
		pool:       pool,
		retryBatch: retryBatch,
		logger:     logger,
	}
}

// ProcessAsync schedules an embedding run for the item and returns
// immediately. It never reports an error to the caller: scheduling failures
// are logged and the item is marked failed so the sweep can retry it.
func (s *Service) ProcessAsync(item domain.CapturedItem) {
	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("embedding pipeline panic",
					zap.String("item_id", item.ID), zap.Any("panic", r))
				s.finish(&item, domain.EmbeddingFailed)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		s.Process(ctx, item)
	})
	if err != nil {
		s.logger.Error("submit embedding job",
			zap.String("item_id", item.ID), zap.Error(err))
		s.finish(&item, domain.EmbeddingFailed)
	}
}

// Process runs the pipeline synchronously for one item. Runs for the same
// item id are serialized so a retry sweep cannot race an in-flight capture.
func (s *Service) Process(ctx context.Context, item domain.CapturedItem) {
	lock := s.lockFor(item.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.run(ctx, &item); err != nil {
		s.logger.Warn("embedding pipeline failed",
			zap.String("item_id", item.ID),
			zap.String("content_type", string(item.ContentType)),
			zap.Error(err))
		s.finish(&item, domain.EmbeddingFailed)
		return
	}
	s.finish(&item, domain.EmbeddingCompleted)
}

// RetrySweep flips a batch of failed items back to pending and re-enqueues
// them. Called periodically by the scheduler.
func (s *Service) RetrySweep(ctx context.Context) error {
	items, err := s.items.ResetFailed(ctx, s.retryBatch)
	if err != nil {
		return fmt.Errorf("reset failed items: %w", err)
	}
	for i := range items {
		s.ProcessAsync(items[i])
	}
	if len(items) > 0 {
		s.logger.Info("retry sweep re-enqueued items", zap.Int("count", len(items)))
	}
	return nil
}

func (s *Service) run(ctx context.Context, item *domain.CapturedItem) error {
	if !s.embed.Available() {
		return domain.ErrProviderUnavailable
	}

	text := extract.Text(extract.FromItem(item))
	if err := extract.Validate(text); err != nil {
		return fmt.Errorf("extracted text: %w", err)
	}

	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	rec := &domain.VectorRecord{
		ID:        item.ID,
		Embedding: res.Vector,
		Text:      text,
		Metadata: domain.RecordMetadata{
			OwnerID:          item.OwnerID,
			ContentType:      item.ContentType,
			CreatedAt:        item.CreatedAt,
			Title:            item.Title,
			Annotation:       item.Annotation,
			Tags:             item.Tags,
			OriginalFilename: item.OriginalFilename,
			Source:           item.Source,
		},
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// finish records the run outcome. The status write is best-effort: on
// success the vector record already exists, and on failure the sweep will
// eventually retry regardless.
func (s *Service) finish(item *domain.CapturedItem, status domain.EmbeddingStatus) {
	outcome := "completed"
	if status == domain.EmbeddingFailed {
		outcome = "failed"
	}
	metrics.PipelineRunsTotal.WithLabelValues(outcome).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.items.UpdateEmbeddingStatus(ctx, item.ID, item.OwnerID, status); err != nil {
		s.logger.Warn("update embedding status",
			zap.String("item_id", item.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (s *Service) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}
