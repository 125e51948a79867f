package domain

import (
	"testing"
	"time"
)

func TestSearchFiltersEmpty(t *testing.T) {
	f := SearchFilters{}
	if !f.Empty() {
		t.Error("zero filters should be empty")
	}
	f.Source = "web"
	if f.Empty() {
		t.Error("filters with a source should not be empty")
	}
}

func TestSearchFiltersMatch(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	result := SearchResult{
		ID:          "r1",
		ContentType: ContentText,
		Tags:        []string{"work", "notes"},
		Source:      "web",
		CreatedAt:   created,
	}

	tests := []struct {
		name    string
		filters SearchFilters
		want    bool
	}{
		{"no filters", SearchFilters{}, true},
		{"content type match", SearchFilters{ContentTypes: []ContentType{ContentText, ContentPDF}}, true},
		{"content type miss", SearchFilters{ContentTypes: []ContentType{ContentImage}}, false},
		{"tags all present", SearchFilters{Tags: []string{"WORK"}}, true},
		{"tags missing one", SearchFilters{Tags: []string{"work", "personal"}}, false},
		{"created after pass", SearchFilters{CreatedAfter: created.Add(-time.Hour)}, true},
		{"created after fail", SearchFilters{CreatedAfter: created.Add(time.Hour)}, false},
		{"created before pass", SearchFilters{CreatedBefore: created.Add(time.Hour)}, true},
		{"created before fail", SearchFilters{CreatedBefore: created.Add(-time.Hour)}, false},
		{"source match", SearchFilters{Source: "web"}, true},
		{"source miss", SearchFilters{Source: "mobile"}, false},
		{"combined pass", SearchFilters{
			ContentTypes: []ContentType{ContentText},
			Tags:         []string{"notes"},
			Source:       "web",
		}, true},
		{"combined one fails", SearchFilters{
			ContentTypes: []ContentType{ContentText},
			Source:       "mobile",
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filters.Match(&result); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
