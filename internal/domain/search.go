package domain

import "time"

// SearchMethod names which backend produced a result set.
type SearchMethod string

const (
	// MethodVector means results came from the vector index alone.
	MethodVector SearchMethod = "vector"
	// MethodFTS means results came from lexical full-text search alone.
	MethodFTS SearchMethod = "fts"
	// MethodCombined means vector and lexical results were merged.
	MethodCombined SearchMethod = "combined"
)

// SearchResult is a single ranked hit. Query-scoped, never persisted.
type SearchResult struct {
	ID          string
	Title       string
	Excerpt     string
	ContentType ContentType
	Score       float64
	Method      SearchMethod
	Tags        []string
	Source      string
	CreatedAt   time.Time
	Metadata    RecordMetadata
}

// TextHit is a lexical search match with its relevance score in (0,1].
type TextHit struct {
	Item  CapturedItem
	Score float64
}

// SearchFilters narrows a result set. Zero-valued fields are inactive.
// Tags use AND semantics: a result must carry every listed tag.
type SearchFilters struct {
	ContentTypes  []ContentType
	Tags          []string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Source        string
}

// Empty reports whether no filter is active.
func (f *SearchFilters) Empty() bool {
	return len(f.ContentTypes) == 0 && len(f.Tags) == 0 &&
		f.CreatedAfter.IsZero() && f.CreatedBefore.IsZero() && f.Source == ""
}

// Match reports whether a result passes every active filter.
func (f *SearchFilters) Match(r *SearchResult) bool {
	if len(f.ContentTypes) > 0 {
		ok := false
		for _, ct := range f.ContentTypes {
			if r.ContentType == ct {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Tags) > 0 {
		item := CapturedItem{Tags: r.Tags}
		if !item.HasAllTags(f.Tags) {
			return false
		}
	}
	if !f.CreatedAfter.IsZero() && r.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && r.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	return true
}
