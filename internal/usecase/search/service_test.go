package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	available bool
	vec       []float32
	err       error
	calls     int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return domain.EmbeddingResult{Vector: m.vec}, m.err
}

func (m *mockEmbedder) Available() bool   { return m.available }
func (m *mockEmbedder) ModelName() string { return "test-model" }

type mockIndex struct {
	hits  []domain.VectorHit
	err   error
	calls int
}

func (m *mockIndex) Query(_ context.Context, _ []float32, _ int) ([]domain.VectorHit, error) {
	m.calls++
	return m.hits, m.err
}

type mockItems struct {
	hits       []domain.TextHit
	err        error
	calls      int
	historyQ   []string
	historyN   []int
	historyErr error
}

func (m *mockItems) SearchByText(
	_ context.Context, _ string, _ int, _ domain.SearchFilters,
) ([]domain.TextHit, error) {
	m.calls++
	return m.hits, m.err
}

func (m *mockItems) RecordSearchHistory(_ context.Context, query string, count int) error {
	m.historyQ = append(m.historyQ, query)
	m.historyN = append(m.historyN, count)
	return m.historyErr
}

func newService(embed *mockEmbedder, index *mockIndex, items *mockItems) *Service {
	return New(embed, index, items, items, 10, 200, zap.NewNop())
}

func vectorHit(id string, sim float64) domain.VectorHit {
	return domain.VectorHit{
		ID:         id,
		Similarity: sim,
		Text:       "embedded text for " + id,
		Metadata: domain.RecordMetadata{
			OwnerID:     "owner-1",
			ContentType: domain.ContentText,
			Title:       "Title " + id,
			CreatedAt:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func textHit(id string, score float64) domain.TextHit {
	return domain.TextHit{
		Item: domain.CapturedItem{
			ID:            id,
			OwnerID:       "owner-1",
			ContentType:   domain.ContentText,
			Title:         "Title " + id,
			ExtractedText: "stored text for " + id,
			CreatedAt:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		Score: score,
	}
}

// --- Tests ---

func TestSearch_EmptyQuery(t *testing.T) {
	svc := newService(&mockEmbedder{}, &mockIndex{}, &mockItems{})
	_, err := svc.Search(context.Background(), Request{Query: "   "})
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("Search() = %v, want ErrEmptyInput", err)
	}
}

func TestSearch_VectorOnly(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{vectorHit("a", 0.9), vectorHit("b", 0.7)}}
	items := &mockItems{}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{Query: "notes", UseFallback: true})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodVector {
		t.Errorf("method = %q, want vector", resp.Method)
	}
	if len(resp.Results) != 2 || resp.Results[0].ID != "a" {
		t.Errorf("results = %+v", resp.Results)
	}
	if items.calls != 0 {
		t.Errorf("lexical search called %d times, want 0", items.calls)
	}
}

func TestSearch_FallbackOnVectorError(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{err: domain.ErrIndexUnavailable}
	items := &mockItems{hits: []domain.TextHit{textHit("ml-1", 0.8)}}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{Query: "machine learning", UseFallback: true})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodFTS {
		t.Errorf("method = %q, want fts", resp.Method)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "ml-1" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearch_NoFallbackPropagatesError(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{err: domain.ErrIndexUnavailable}
	items := &mockItems{}
	svc := newService(embed, index, items)

	_, err := svc.Search(context.Background(), Request{Query: "notes", UseFallback: false})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("Search() = %v, want ErrIndexUnavailable", err)
	}
	if items.calls != 0 {
		t.Errorf("lexical search called %d times, want 0", items.calls)
	}
}

func TestSearch_FallbackOnEmptyVectorResults(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{}
	items := &mockItems{hits: []domain.TextHit{textHit("a", 0.5)}}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{Query: "notes", UseFallback: true})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodFTS || len(resp.Results) != 1 {
		t.Errorf("method = %q, results = %d", resp.Method, len(resp.Results))
	}
}

func TestSearch_ProviderUnavailableFallsBack(t *testing.T) {
	embed := &mockEmbedder{available: false}
	index := &mockIndex{}
	items := &mockItems{hits: []domain.TextHit{textHit("a", 0.5)}}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{Query: "notes", UseFallback: true})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodFTS {
		t.Errorf("method = %q, want fts", resp.Method)
	}
	if embed.calls != 0 {
		t.Errorf("embed called %d times, want 0", embed.calls)
	}
}

func TestSearch_CombinedMergesSharedID(t *testing.T) {
	// After per-set min-max normalization id "x" scores 0.8 on the vector
	// side and 0.4 on the lexical side, so the merged score is 0.6.
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{
		vectorHit("top", 1.0), vectorHit("x", 0.8), vectorHit("low", 0.0),
	}}
	items := &mockItems{hits: []domain.TextHit{
		textHit("best", 1.0), textHit("x", 0.4), textHit("worst", 0.0),
	}}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{
		Query: "notes", UseFallback: true, CombineResults: true,
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodCombined {
		t.Errorf("method = %q, want combined", resp.Method)
	}

	var merged *domain.SearchResult
	seen := map[string]int{}
	for i := range resp.Results {
		seen[resp.Results[i].ID]++
		if resp.Results[i].ID == "x" {
			merged = &resp.Results[i]
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("id %q appears %d times", id, n)
		}
	}
	if merged == nil {
		t.Fatal("shared id missing from merged results")
	}
	if merged.Score < 0.599 || merged.Score > 0.601 {
		t.Errorf("merged score = %v, want 0.6", merged.Score)
	}
	if merged.Method != domain.MethodCombined {
		t.Errorf("merged method = %q, want combined", merged.Method)
	}

	// Descending order must hold across the merged set.
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Errorf("results not sorted at %d: %v > %v",
				i, resp.Results[i].Score, resp.Results[i-1].Score)
		}
	}
}

func TestSearch_CombinedLexicalFailureDegrades(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{vectorHit("a", 0.9)}}
	items := &mockItems{err: errors.New("fts offline")}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{
		Query: "notes", UseFallback: true, CombineResults: true,
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodVector || len(resp.Results) != 1 {
		t.Errorf("method = %q, results = %d", resp.Method, len(resp.Results))
	}
}

func TestSearch_CombinedVectorFailureFallsBack(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{err: domain.ErrIndexUnavailable}
	items := &mockItems{hits: []domain.TextHit{textHit("a", 0.5)}}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{
		Query: "notes", UseFallback: true, CombineResults: true,
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodFTS {
		t.Errorf("method = %q, want fts", resp.Method)
	}
}

func TestSearch_LimitTruncates(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{
		vectorHit("a", 0.9), vectorHit("b", 0.8), vectorHit("c", 0.7),
	}}
	svc := newService(embed, index, &mockItems{})

	resp, err := svc.Search(context.Background(), Request{Query: "notes", Limit: 2})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results = %d, want 2", len(resp.Results))
	}
}

func TestSearch_FiltersApplyAfterMethodSelection(t *testing.T) {
	imageHit := vectorHit("img", 0.9)
	imageHit.Metadata.ContentType = domain.ContentImage
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{imageHit, vectorHit("txt", 0.8)}}
	svc := newService(embed, index, &mockItems{})

	resp, err := svc.Search(context.Background(), Request{
		Query: "notes",
		Filters: domain.SearchFilters{
			ContentTypes: []domain.ContentType{domain.ContentText},
		},
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Method != domain.MethodVector {
		t.Errorf("method = %q, filtering must not change it", resp.Method)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "txt" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearch_HistoryRecorded(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{vectorHit("a", 0.9)}}
	items := &mockItems{}
	svc := newService(embed, index, items)

	if _, err := svc.Search(context.Background(), Request{Query: "  notes  "}); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(items.historyQ) != 1 || items.historyQ[0] != "notes" || items.historyN[0] != 1 {
		t.Errorf("history = %v / %v", items.historyQ, items.historyN)
	}
}

func TestSearch_HistoryFailureIsSwallowed(t *testing.T) {
	embed := &mockEmbedder{available: true, vec: []float32{0.1}}
	index := &mockIndex{hits: []domain.VectorHit{vectorHit("a", 0.9)}}
	items := &mockItems{historyErr: errors.New("db locked")}
	svc := newService(embed, index, items)

	resp, err := svc.Search(context.Background(), Request{Query: "notes"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1", len(resp.Results))
	}
}

func TestNormalizeScores(t *testing.T) {
	rs := []domain.SearchResult{{Score: 0.2}, {Score: 0.6}, {Score: 1.0}}
	normalizeScores(rs)
	if rs[0].Score != 0 || rs[2].Score != 1 {
		t.Errorf("min/max = %v/%v, want 0/1", rs[0].Score, rs[2].Score)
	}
	if rs[1].Score < 0.499 || rs[1].Score > 0.501 {
		t.Errorf("mid = %v, want 0.5", rs[1].Score)
	}

	equal := []domain.SearchResult{{Score: 0.7}, {Score: 0.7}}
	normalizeScores(equal)
	for i, r := range equal {
		if r.Score != 1.0 {
			t.Errorf("equal set score[%d] = %v, want 1.0", i, r.Score)
		}
	}

	normalizeScores(nil)
}
