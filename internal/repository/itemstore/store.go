// Package itemstore is the relational collaborator: captured item rows,
// lexical full-text search over them, embedding status updates, and the
// search-history log. Backed by SQLite with an FTS5 shadow table.
package itemstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stashkit/retrieval/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    content_type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    annotation TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    extracted_text TEXT NOT NULL DEFAULT '',
    original_filename TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    embedding_status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(embedding_status);

CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
    item_id UNINDEXED, title, annotation, extracted_text,
    tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS search_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    result_count INTEGER NOT NULL,
    searched_at TEXT NOT NULL
);
`

// Store provides access to the relational item database.
type Store struct {
	db *sql.DB
}

// Open opens (and initializes) the SQLite database at path.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database availability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const itemColumns = `id, owner_id, content_type, title, annotation, tags,
	extracted_text, original_filename, source, embedding_status, created_at, updated_at`

// Create inserts a captured item. A missing id is generated; the embedding
// status starts pending. The FTS shadow row is written in the same transaction.
func (s *Store) Create(ctx context.Context, item *domain.CapturedItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.EmbeddingStatus == "" {
		item.EmbeddingStatus = domain.EmbeddingPending
	}

	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, string(item.ContentType), item.Title, item.Annotation,
		string(tags), item.ExtractedText, item.OriginalFilename, item.Source,
		string(item.EmbeddingStatus),
		item.CreatedAt.Format(time.RFC3339), item.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items_fts (item_id, title, annotation, extracted_text)
		VALUES (?, ?, ?, ?)`,
		item.ID, item.Title, item.Annotation, item.ExtractedText,
	)
	if err != nil {
		return fmt.Errorf("insert fts row: %w", err)
	}

	return tx.Commit()
}

// GetByID fetches a single item.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.CapturedItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// Delete removes an item and its FTS row. The caller is responsible for the
// paired vector-index delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrItemNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items_fts WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("delete fts row %s: %w", id, err)
	}
	return tx.Commit()
}

// UpdateEmbeddingStatus writes the item's pipeline status. Only the legal
// transitions are accepted: pending to completed or failed, failed back to
// pending. The update is guarded on the observed status so a concurrent
// change cannot slip an illegal move through.
func (s *Store) UpdateEmbeddingStatus(
	ctx context.Context, id, ownerID string, status domain.EmbeddingStatus,
) error {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding_status FROM items WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("read status %s: %w", id, err)
	}
	if !domain.EmbeddingStatus(current).CanTransition(status) {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidStatusChange, current, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET embedding_status = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND embedding_status = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id, ownerID, current,
	)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: status moved concurrently for %s", domain.ErrInvalidStatusChange, id)
	}
	return nil
}

// RecordSearchHistory appends an analytics entry for a served search.
func (s *Store) RecordSearchHistory(ctx context.Context, query string, resultCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (query, result_count, searched_at)
		VALUES (?, ?, ?)`,
		query, resultCount, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record search history: %w", err)
	}
	return nil
}

// ResetFailed flips up to limit failed items back to pending and returns
// them for reprocessing. The returned rows carry everything the pipeline can
// re-embed (title, annotation, extracted text).
func (s *Store) ResetFailed(ctx context.Context, limit int) ([]domain.CapturedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE embedding_status = ?
		ORDER BY updated_at ASC
		LIMIT ?`,
		string(domain.EmbeddingFailed), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if err := s.UpdateEmbeddingStatus(ctx, items[i].ID, items[i].OwnerID, domain.EmbeddingPending); err != nil {
			return nil, err
		}
		items[i].EmbeddingStatus = domain.EmbeddingPending
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.CapturedItem, error) {
	var (
		item        domain.CapturedItem
		contentType string
		status      string
		tagsJSON    string
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&item.ID, &item.OwnerID, &contentType, &item.Title, &item.Annotation,
		&tagsJSON, &item.ExtractedText, &item.OriginalFilename, &item.Source,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return finishItem(&item, contentType, status, tagsJSON, createdAt, updatedAt)
}

func finishItem(
	item *domain.CapturedItem, contentType, status, tagsJSON, createdAt, updatedAt string,
) (*domain.CapturedItem, error) {
	item.ContentType = domain.ContentType(contentType)
	item.EmbeddingStatus = domain.EmbeddingStatus(status)
	if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]domain.CapturedItem, error) {
	defer rows.Close()
	var items []domain.CapturedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
