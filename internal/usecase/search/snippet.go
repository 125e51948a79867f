package search

import (
	"fmt"
	"strings"
)

// snippetLookBehind is how many characters of context precede the first
// matched query term in a snippet window.
const snippetLookBehind = 50

// buildSnippet produces the excerpt shown with a search result.
//
// Image and PDF captures carry no useful extracted text, so their annotation
// wins verbatim when present. Everything else concatenates the descriptive
// fields and windows around the first query term hit.
func buildSnippet(r *snippetSource, query string, maxLen int) string {
	if r.contentType == "image" || r.contentType == "pdf" {
		if a := strings.TrimSpace(r.annotation); a != "" {
			return truncate(a, maxLen)
		}
	}

	var parts []string
	for _, p := range []string{r.title, r.annotation, r.text} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("[%s content]", r.contentType)
	}
	full := strings.Join(parts, " ")

	idx := firstTermIndex(full, query)
	if idx < 0 {
		return truncate(full, maxLen)
	}
	return window(full, idx, maxLen)
}

type snippetSource struct {
	contentType string
	title       string
	annotation  string
	text        string
}

// firstTermIndex returns the byte offset of the earliest case-insensitive
// occurrence of any whitespace-split query term, or -1.
func firstTermIndex(s, query string) int {
	lower := strings.ToLower(s)
	best := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if idx := strings.Index(lower, term); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

// window extracts maxLen characters starting a little before the match,
// with ellipsis markers where the window cuts into the string.
func window(s string, matchIdx, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	start := matchIdx - snippetLookBehind
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(s) {
		end = len(s)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}

	snippet := s[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(s) {
		snippet += "..."
	}
	return snippet
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
