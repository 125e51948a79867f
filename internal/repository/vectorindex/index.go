// Package vectorindex implements the vector index client over an FT-capable
// Redis backend. Records are hashes under a key prefix; a single FT index
// per collection answers KNN queries with cosine distance.
package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/db"
	"github.com/stashkit/retrieval/internal/domain"
)

// Store is the consumer interface of the database layer.
type Store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index string) (int, error)
}

// HNSWConfig tunes index construction.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Index is a vector index client for one named collection.
type Index struct {
	store      Store
	collection string
	keyPrefix  string
	dimensions int
	hnsw       HNSWConfig
	logger     *zap.Logger

	initMu      sync.Mutex
	initialized bool
}

// New creates a vector index client. The collection is created lazily on
// first use.
func New(store Store, collection, keyPrefix string, dimensions int, logger *zap.Logger) *Index {
	return &Index{
		store:      store,
		collection: collection,
		keyPrefix:  keyPrefix + collection + ":",
		dimensions: dimensions,
		logger:     logger,
	}
}

// WithHNSW overrides HNSW construction parameters.
func (x *Index) WithHNSW(cfg HNSWConfig) *Index {
	x.hnsw = cfg
	return x
}

// Record field names inside the backing hash.
const (
	fieldVector           = "vector"
	fieldText             = "text"
	fieldOwnerID          = "owner_id"
	fieldContentType      = "content_type"
	fieldCreatedAt        = "created_at"
	fieldTitle            = "title"
	fieldAnnotation       = "annotation"
	fieldTags             = "tags"
	fieldOriginalFilename = "original_filename"
	fieldSource           = "source"
)

const tagSeparator = "\x1f"

// ensureReady creates the collection's FT index exactly once. Concurrent
// first use takes the mutex; the losers reuse the winner's index.
func (x *Index) ensureReady(ctx context.Context) error {
	x.initMu.Lock()
	defer x.initMu.Unlock()

	if x.initialized {
		return nil
	}

	exists, err := x.store.IndexExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("%w: probe collection %s: %v", domain.ErrIndexUnavailable, x.collection, err)
	}
	if exists {
		x.initialized = true
		return nil
	}

	def := &db.IndexDefinition{
		Name:     x.collection,
		Prefixes: []string{x.keyPrefix},
		Fields: []db.IndexField{
			{Name: fieldOwnerID, Type: db.IndexFieldTag},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         x.dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           x.hnsw.M,
				VectorEFConstruct: x.hnsw.EFConstruct,
			},
		},
	}

	err = x.store.CreateIndex(ctx, def)
	switch {
	case err == nil:
		x.logger.Info("vector collection created", zap.String("collection", x.collection))
	case errors.Is(err, db.ErrIndexExists):
		// get-or-create: an existing index is the expected steady state
	default:
		return fmt.Errorf("%w: create collection %s: %v", domain.ErrIndexUnavailable, x.collection, err)
	}

	x.initialized = true
	return nil
}

// Upsert replaces any existing record for the id. Retry policy lives in the
// pipeline, not here.
func (x *Index) Upsert(ctx context.Context, rec *domain.VectorRecord) error {
	if err := x.ensureReady(ctx); err != nil {
		return err
	}
	if len(rec.Embedding) != x.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(rec.Embedding), x.dimensions)
	}

	// Every field is written, empty values included, so an upsert fully
	// replaces the record without a destructive delete-first step.
	fields := map[string]string{
		fieldVector:           encodeVector(rec.Embedding),
		fieldText:             rec.Text,
		fieldOwnerID:          rec.Metadata.OwnerID,
		fieldContentType:      string(rec.Metadata.ContentType),
		fieldCreatedAt:        rec.Metadata.CreatedAt.UTC().Format(time.RFC3339),
		fieldTitle:            rec.Metadata.Title,
		fieldAnnotation:       rec.Metadata.Annotation,
		fieldTags:             strings.Join(rec.Metadata.Tags, tagSeparator),
		fieldOriginalFilename: rec.Metadata.OriginalFilename,
		fieldSource:           rec.Metadata.Source,
	}

	if err := x.store.HSet(ctx, x.key(rec.ID), fields); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", domain.ErrIndexUnavailable, rec.ID, err)
	}
	return nil
}

// Query returns up to limit nearest records ordered by descending
// similarity. An empty collection yields an empty slice, not an error.
func (x *Index) Query(ctx context.Context, embedding []float32, limit int) ([]domain.VectorHit, error) {
	if err := x.ensureReady(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.VectorHit{}, nil
	}

	res, err := x.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: x.collection,
		Vector:    embedding,
		K:         limit,
		ReturnFields: []string{
			fieldText, fieldOwnerID, fieldContentType, fieldCreatedAt,
			fieldTitle, fieldAnnotation, fieldTags, fieldOriginalFilename, fieldSource,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knn query: %v", domain.ErrIndexUnavailable, err)
	}

	hits := make([]domain.VectorHit, 0, len(res.Entries))
	for _, entry := range res.Entries {
		hits = append(hits, domain.VectorHit{
			ID:         strings.TrimPrefix(entry.Key, x.keyPrefix),
			Similarity: distanceToSimilarity(entry.Distance),
			Metadata:   fieldsToMetadata(entry.Fields),
			Text:       entry.Fields[fieldText],
		})
	}
	return hits, nil
}

// Delete removes the record for the id. Deleting an absent id is a no-op.
func (x *Index) Delete(ctx context.Context, id string) error {
	if err := x.ensureReady(ctx); err != nil {
		return err
	}
	if err := x.store.Del(ctx, x.key(id)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrIndexUnavailable, id, err)
	}
	return nil
}

// Get fetches a single record by id.
func (x *Index) Get(ctx context.Context, id string) (*domain.VectorRecord, error) {
	if err := x.ensureReady(ctx); err != nil {
		return nil, err
	}
	fields, err := x.store.HGetAll(ctx, x.key(id))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrIndexUnavailable, id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRecordNotFound
	}

	embedding, err := decodeVector(fields[fieldVector])
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}

	return &domain.VectorRecord{
		ID:        id,
		Embedding: embedding,
		Metadata:  fieldsToMetadata(fields),
		Text:      fields[fieldText],
	}, nil
}

// Stats reports collection size and backend reachability. It doubles as the
// readiness probe for the search service's pre-flight decision.
func (x *Index) Stats(ctx context.Context) domain.IndexStats {
	if err := x.ensureReady(ctx); err != nil {
		return domain.IndexStats{Connected: false}
	}
	count, err := x.store.SearchCount(ctx, x.collection)
	if err != nil {
		return domain.IndexStats{Connected: false}
	}
	return domain.IndexStats{Count: count, Connected: true}
}

func (x *Index) key(id string) string {
	return x.keyPrefix + id
}

// distanceToSimilarity converts cosine distance in [0,2] to similarity.
// Normalized text embeddings land in [0,1] in practice.
func distanceToSimilarity(distance float64) float64 {
	return 1 - distance/2
}

func fieldsToMetadata(fields map[string]string) domain.RecordMetadata {
	meta := domain.RecordMetadata{
		OwnerID:          fields[fieldOwnerID],
		ContentType:      domain.ContentType(fields[fieldContentType]),
		Title:            fields[fieldTitle],
		Annotation:       fields[fieldAnnotation],
		OriginalFilename: fields[fieldOriginalFilename],
		Source:           fields[fieldSource],
	}
	if raw := fields[fieldTags]; raw != "" {
		meta.Tags = strings.Split(raw, tagSeparator)
	}
	if raw := fields[fieldCreatedAt]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			meta.CreatedAt = t
		}
	}
	return meta
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func decodeVector(s string) ([]float32, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload: len=%d", len(s))
	}
	data := []byte(s)
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
