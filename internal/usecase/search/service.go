// Package search serves free-text queries over captured items, combining
// semantic vector search with lexical full-text search from the relational
// store. Vector search is the primary path; lexical search serves as
// fallback or as a second signal when combination is requested.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/domain"
	"github.com/stashkit/retrieval/internal/metrics"
)

// Request is one search invocation. Limit <= 0 means the service default.
// UseFallback is expected to default to true at the transport boundary.
type Request struct {
	Query          string
	Limit          int
	Filters        domain.SearchFilters
	UseFallback    bool
	CombineResults bool
}

// Response carries the ranked results plus the method that served them.
// The method is a whole-response label; merged results additionally mark
// per-result methods.
type Response struct {
	Results []domain.SearchResult
	Method  domain.SearchMethod
}

// Service orchestrates query-time retrieval.
type Service struct {
	embed        domain.Embedder
	index        VectorIndex
	items        TextSearcher
	history      HistoryRecorder
	defaultLimit int
	snippetMax   int
	logger       *zap.Logger
}

// New creates a search service.
func New(
	embed domain.Embedder, index VectorIndex, items TextSearcher, history HistoryRecorder,
	defaultLimit, snippetMax int, logger *zap.Logger,
) *Service {
	return &Service{
		embed:        embed,
		index:        index,
		items:        items,
		history:      history,
		defaultLimit: defaultLimit,
		snippetMax:   snippetMax,
		logger:       logger,
	}
}

// Search runs the query and returns a ranked, deduplicated, filtered result
// set. Filters apply as a final pass and never change the reported method.
// The search-history write is best-effort and cannot fail the call.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrEmptyInput
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	start := time.Now()
	results, method, err := s.dispatch(ctx, query, limit, req)
	if err != nil {
		return nil, err
	}

	results = applyFilters(results, req.Filters)
	if len(results) > limit {
		results = results[:limit]
	}

	metrics.SearchRequestsTotal.WithLabelValues(string(method)).Inc()
	metrics.SearchRequestDuration.Observe(time.Since(start).Seconds())

	if err := s.history.RecordSearchHistory(ctx, query, len(results)); err != nil {
		s.logger.Warn("record search history", zap.Error(err))
	}
	return &Response{Results: results, Method: method}, nil
}

func (s *Service) dispatch(
	ctx context.Context, query string, limit int, req Request,
) ([]domain.SearchResult, domain.SearchMethod, error) {
	if req.CombineResults {
		return s.searchCombined(ctx, query, limit, req)
	}

	vec, err := s.searchVector(ctx, query, limit)
	switch {
	case err != nil && req.UseFallback:
		s.logger.Warn("vector search failed, falling back to lexical",
			zap.Error(err))
		lex, lerr := s.searchLexical(ctx, query, limit, req.Filters)
		if lerr != nil {
			return nil, "", fmt.Errorf("lexical fallback: %w", lerr)
		}
		return lex, domain.MethodFTS, nil
	case err != nil:
		return nil, "", err
	case len(vec) == 0 && req.UseFallback:
		lex, lerr := s.searchLexical(ctx, query, limit, req.Filters)
		if lerr != nil {
			return nil, "", fmt.Errorf("lexical fallback: %w", lerr)
		}
		return lex, domain.MethodFTS, nil
	default:
		return vec, domain.MethodVector, nil
	}
}

// searchCombined queries both backends concurrently. A lexical failure
// degrades to vector-only results; a vector failure degrades to lexical
// results when fallback is enabled.
func (s *Service) searchCombined(
	ctx context.Context, query string, limit int, req Request,
) ([]domain.SearchResult, domain.SearchMethod, error) {
	var (
		wg     sync.WaitGroup
		vec    []domain.SearchResult
		vecErr error
		lex    []domain.SearchResult
		lexErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vec, vecErr = s.searchVector(ctx, query, limit)
	}()
	go func() {
		defer wg.Done()
		lex, lexErr = s.searchLexical(ctx, query, limit, req.Filters)
	}()
	wg.Wait()

	if vecErr != nil {
		if !req.UseFallback {
			return nil, "", vecErr
		}
		s.logger.Warn("vector search failed, falling back to lexical",
			zap.Error(vecErr))
		if lexErr != nil {
			return nil, "", fmt.Errorf("lexical fallback: %w", lexErr)
		}
		return lex, domain.MethodFTS, nil
	}
	if lexErr != nil {
		s.logger.Warn("lexical search failed during combination, serving vector results",
			zap.Error(lexErr))
		return vec, domain.MethodVector, nil
	}

	switch {
	case len(vec) == 0 && len(lex) == 0:
		return []domain.SearchResult{}, domain.MethodVector, nil
	case len(lex) == 0:
		return vec, domain.MethodVector, nil
	case len(vec) == 0:
		return lex, domain.MethodFTS, nil
	}
	return combine(vec, lex, limit), domain.MethodCombined, nil
}

func (s *Service) searchVector(
	ctx context.Context, query string, limit int,
) ([]domain.SearchResult, error) {
	if !s.embed.Available() {
		return nil, domain.ErrProviderUnavailable
	}
	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.index.Query(ctx, res.Vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]domain.SearchResult, 0, len(hits))
	for i := range hits {
		out = append(out, s.hitToResult(&hits[i], query))
	}
	return out, nil
}

func (s *Service) searchLexical(
	ctx context.Context, query string, limit int, filters domain.SearchFilters,
) ([]domain.SearchResult, error) {
	hits, err := s.items.SearchByText(ctx, query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	out := make([]domain.SearchResult, 0, len(hits))
	for i := range hits {
		item := &hits[i].Item
		excerpt := buildSnippet(&snippetSource{
			contentType: string(item.ContentType),
			title:       item.Title,
			annotation:  item.Annotation,
			text:        item.ExtractedText,
		}, query, s.snippetMax)
		out = append(out, domain.SearchResult{
			ID:          item.ID,
			Title:       item.Title,
			Excerpt:     excerpt,
			ContentType: item.ContentType,
			Score:       hits[i].Score,
			Method:      domain.MethodFTS,
			Tags:        item.Tags,
			Source:      item.Source,
			CreatedAt:   item.CreatedAt,
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
		})
	}
	return out, nil
}

func (s *Service) hitToResult(h *domain.VectorHit, query string) domain.SearchResult {
	excerpt := buildSnippet(&snippetSource{
		contentType: string(h.Metadata.ContentType),
		title:       h.Metadata.Title,
		annotation:  h.Metadata.Annotation,
		text:        h.Text,
	}, query, s.snippetMax)
	return domain.SearchResult{
		ID:          h.ID,
		Title:       h.Metadata.Title,
		Excerpt:     excerpt,
		ContentType: h.Metadata.ContentType,
		Score:       h.Similarity,
		Method:      domain.MethodVector,
		Tags:        h.Metadata.Tags,
		Source:      h.Metadata.Source,
		CreatedAt:   h.Metadata.CreatedAt,
		Metadata:    h.Metadata,
	}
}

// combine merges two already-ranked sets by id. Scores are min-max
// normalized per set first; an id in both sets gets the mean of its two
// normalized scores and the combined method label. Vector results are
// inserted first so they win ties in ordering.
func combine(vec, lex []domain.SearchResult, limit int) []domain.SearchResult {
	normalizeScores(vec)
	normalizeScores(lex)

	merged := make(map[string]*domain.SearchResult, len(vec)+len(lex))
	order := make([]string, 0, len(vec)+len(lex))
	for i := range vec {
		r := vec[i]
		merged[r.ID] = &r
		order = append(order, r.ID)
	}
	for i := range lex {
		l := lex[i]
		if existing, ok := merged[l.ID]; ok {
			existing.Score = (existing.Score + l.Score) / 2
			existing.Method = domain.MethodCombined
			continue
		}
		merged[l.ID] = &l
		order = append(order, l.ID)
	}

	out := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalizeScores rescales in place to [0,1]. A set whose scores are all
// equal maps to 1.0 everywhere.
func normalizeScores(rs []domain.SearchResult) {
	if len(rs) == 0 {
		return
	}
	min, max := rs[0].Score, rs[0].Score
	for _, r := range rs[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	if max == min {
		for i := range rs {
			rs[i].Score = 1.0
		}
		return
	}
	for i := range rs {
		rs[i].Score = (rs[i].Score - min) / (max - min)
	}
}

func applyFilters(rs []domain.SearchResult, f domain.SearchFilters) []domain.SearchResult {
	if f.Empty() {
		return rs
	}
	out := rs[:0]
	for i := range rs {
		if f.Match(&rs[i]) {
			out = append(out, rs[i])
		}
	}
	return out
}
