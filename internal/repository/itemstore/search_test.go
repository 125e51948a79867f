package itemstore

import (
	"context"
	"testing"
	"time"

	"github.com/stashkit/retrieval/internal/domain"
)

func seedItem(t *testing.T, store *Store, item *domain.CapturedItem) {
	t.Helper()
	if err := store.Create(context.Background(), item); err != nil {
		t.Fatalf("Create(%s) error = %v", item.ID, err)
	}
}

func TestSearchByText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedItem(t, store, &domain.CapturedItem{
		ID: "recipe", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Pasta recipe", ExtractedText: "boil water add pasta and tomato sauce",
	})
	seedItem(t, store, &domain.CapturedItem{
		ID: "receipt", OwnerID: "user-1", ContentType: domain.ContentImage,
		Title: "Dinner receipt", Annotation: "pasta place downtown",
	})
	seedItem(t, store, &domain.CapturedItem{
		ID: "unrelated", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Tax documents", ExtractedText: "annual filing deadline",
	})

	hits, err := store.SearchByText(ctx, "pasta", 10, domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.Score <= 0 || h.Score > 1 {
			t.Errorf("hit %s score = %v, want in (0,1]", h.Item.ID, h.Score)
		}
		if h.Item.ID == "unrelated" {
			t.Error("unrelated item matched")
		}
	}
}

func TestSearchByTextPrefixMatch(t *testing.T) {
	store := newTestStore(t)

	seedItem(t, store, &domain.CapturedItem{
		ID: "a", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Kubernetes deployment notes",
	})

	hits, err := store.SearchByText(context.Background(), "kubern", 10, domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1 prefix match", len(hits))
	}
}

func TestSearchByTextTitleRanksAboveBody(t *testing.T) {
	store := newTestStore(t)

	seedItem(t, store, &domain.CapturedItem{
		ID: "in-title", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Coffee brewing", ExtractedText: "various morning drinks",
	})
	seedItem(t, store, &domain.CapturedItem{
		ID: "in-body", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Morning routine", ExtractedText: "wake up and make coffee",
	})

	hits, err := store.SearchByText(context.Background(), "coffee", 10, domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Item.ID != "in-title" {
		t.Errorf("top hit = %s, want title match first", hits[0].Item.ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestSearchByTextContentTypeFilter(t *testing.T) {
	store := newTestStore(t)

	seedItem(t, store, &domain.CapturedItem{
		ID: "note", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Budget note",
	})
	seedItem(t, store, &domain.CapturedItem{
		ID: "scan", OwnerID: "user-1", ContentType: domain.ContentPDF,
		Title: "Budget scan",
	})

	hits, err := store.SearchByText(context.Background(), "budget", 10,
		domain.SearchFilters{ContentTypes: []domain.ContentType{domain.ContentPDF}})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Item.ID != "scan" {
		t.Errorf("hits = %+v, want only the pdf", hits)
	}
}

func TestSearchByTextSourceFilter(t *testing.T) {
	store := newTestStore(t)

	seedItem(t, store, &domain.CapturedItem{
		ID: "web", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Travel ideas", Source: "web",
	})
	seedItem(t, store, &domain.CapturedItem{
		ID: "mobile", OwnerID: "user-1", ContentType: domain.ContentText,
		Title: "Travel packing", Source: "mobile",
	})

	hits, err := store.SearchByText(context.Background(), "travel", 10,
		domain.SearchFilters{Source: "mobile"})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Item.ID != "mobile" {
		t.Errorf("hits = %+v, want only the mobile item", hits)
	}
}

func TestSearchByTextDateRangeFilter(t *testing.T) {
	store := newTestStore(t)

	old := &domain.CapturedItem{
		ID: "old", OwnerID: "user-1", ContentType: domain.ContentText,
		Title:     "Meeting notes january",
		CreatedAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	recent := &domain.CapturedItem{
		ID: "recent", OwnerID: "user-1", ContentType: domain.ContentText,
		Title:     "Meeting notes june",
		CreatedAt: time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
	}
	seedItem(t, store, old)
	seedItem(t, store, recent)

	hits, err := store.SearchByText(context.Background(), "meeting", 10,
		domain.SearchFilters{CreatedAfter: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Item.ID != "recent" {
		t.Errorf("hits = %+v, want only the recent item", hits)
	}

	hits, err = store.SearchByText(context.Background(), "meeting", 10,
		domain.SearchFilters{CreatedBefore: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Item.ID != "old" {
		t.Errorf("hits = %+v, want only the old item", hits)
	}
}

func TestSearchByTextLimit(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		seedItem(t, store, &domain.CapturedItem{
			ID: id, OwnerID: "user-1", ContentType: domain.ContentText,
			Title: "Reading list entry",
		})
	}

	hits, err := store.SearchByText(context.Background(), "reading", 2, domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}
}

func TestSearchByTextNoUsableTerms(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.SearchByText(context.Background(), "!!! ...", 10, domain.SearchFilters{})
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %v, want empty non-nil slice", hits)
	}
}

func TestBuildMatchQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"single term", "coffee", `"coffee"*`},
		{"multiple terms", "coffee shop", `"coffee"* AND "shop"*`},
		{"strips punctuation", "what's up?", `"what's"* AND "up"*`},
		{"punctuation only", "!!! ???", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildMatchQuery(tt.query); got != tt.want {
				t.Errorf("buildMatchQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestBM25ToScore(t *testing.T) {
	if got := bm25ToScore(-4); got <= 0 || got > 1 {
		t.Errorf("bm25ToScore(-4) = %v, want in (0,1]", got)
	}
	// More relevant (more negative rank) scores higher.
	if bm25ToScore(-6) <= bm25ToScore(-2) {
		t.Error("ranking not monotone")
	}
	// Garbage positive rank clamps to zero.
	if got := bm25ToScore(3); got != 0 {
		t.Errorf("bm25ToScore(3) = %v, want 0", got)
	}
}
