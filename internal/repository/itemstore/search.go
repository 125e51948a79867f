package itemstore

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/stashkit/retrieval/internal/domain"
)

// SearchByText runs lexical full-text search over titles, annotations, and
// extracted text, ranked by bm25. Filters that map directly onto columns
// (content type, source, creation range) are pushed into the SQL; tag
// matching stays with the caller.
func (s *Store) SearchByText(
	ctx context.Context, query string, limit int, filters domain.SearchFilters,
) ([]domain.TextHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []domain.TextHit{}, nil
	}

	sqlStr := `
		SELECT ` + prefixColumns("i") + `, bm25(items_fts, 1.0, 5.0, 3.0, 1.0) AS rank
		FROM items_fts f
		JOIN items i ON i.id = f.item_id
		WHERE items_fts MATCH ?`
	args := []any{match}

	if len(filters.ContentTypes) > 0 {
		placeholders := strings.Repeat("?,", len(filters.ContentTypes))
		sqlStr += ` AND i.content_type IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, ct := range filters.ContentTypes {
			args = append(args, string(ct))
		}
	}
	if filters.Source != "" {
		sqlStr += ` AND i.source = ?`
		args = append(args, filters.Source)
	}
	if !filters.CreatedAfter.IsZero() {
		sqlStr += ` AND i.created_at >= ?`
		args = append(args, filters.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if !filters.CreatedBefore.IsZero() {
		sqlStr += ` AND i.created_at <= ?`
		args = append(args, filters.CreatedBefore.UTC().Format(time.RFC3339))
	}

	sqlStr += ` ORDER BY rank ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []domain.TextHit
	for rows.Next() {
		var rank float64
		item, err := scanItemWithRank(rows, &rank)
		if err != nil {
			return nil, err
		}
		hits = append(hits, domain.TextHit{Item: *item, Score: bm25ToScore(rank)})
	}
	return hits, rows.Err()
}

func prefixColumns(alias string) string {
	cols := strings.Split(itemColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func scanItemWithRank(rows rowScanner, rank *float64) (*domain.CapturedItem, error) {
	// Mirrors scanItem with the trailing rank column.
	var (
		item        domain.CapturedItem
		contentType string
		status      string
		tagsJSON    string
		createdAt   string
		updatedAt   string
	)
	err := rows.Scan(
		&item.ID, &item.OwnerID, &contentType, &item.Title, &item.Annotation,
		&tagsJSON, &item.ExtractedText, &item.OriginalFilename, &item.Source,
		&status, &createdAt, &updatedAt, rank,
	)
	if err != nil {
		return nil, err
	}
	return finishItem(&item, contentType, status, tagsJSON, createdAt, updatedAt)
}

// buildMatchQuery turns free text into an FTS5 MATCH expression: each
// alphanumeric term becomes a quoted prefix match, terms joined with AND.
func buildMatchQuery(query string) string {
	var terms []string
	for _, word := range strings.Fields(query) {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if cleaned != "" {
			terms = append(terms, fmt.Sprintf(`"%s"*`, cleaned))
		}
	}
	return strings.Join(terms, " AND ")
}

// bm25ToScore maps an FTS5 bm25 rank (more negative = more relevant) to a
// monotone score in (0,1), higher = more relevant.
func bm25ToScore(rank float64) float64 {
	rel := -rank
	if rel < 0 {
		rel = 0
	}
	return rel / (rel + 1)
}
