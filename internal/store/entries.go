// ABOUTME: Entry row operations, centered on the (source_id, uid) upsert
// ABOUTME: Update-then-insert-on-miss keeps exactly one row per natural key

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"refeed/internal/models"
)

// UpsertEntry merges one parsed entry into the entry table, keyed by
// (source_id, uid). An existing row gets its content fields and updated_at
// refreshed; a missing row is inserted with inserted_at = updated_at. Runs
// inside the cycle transaction so a failed parse leaves no partial feed.
func (t *Tx) UpsertEntry(ctx context.Context, e *models.Entry) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE entries
		SET title = ?, link = ?, author = ?, content = ?,
			published_at = ?, published_raw = ?, updated_at = ?
		WHERE source_id = ? AND uid = ?`,
		e.Title, e.Link, e.Author, e.Content,
		e.PublishedAt, e.PublishedRaw, e.UpdatedAt,
		e.SourceID, e.UID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	const q = `
		INSERT INTO entries (id, source_id, uid, title, link, author, content,
			published_at, published_raw, inserted_at, updated_at)
		VALUES (:id, :source_id, :uid, :title, :link, :author, :content,
			:published_at, :published_raw, :inserted_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// EntryByKey retrieves an entry by its natural key, returning ErrNotFound
// when absent.
func (s *Store) EntryByKey(ctx context.Context, sourceID int64, uid string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.GetContext(ctx, &entry,
		`SELECT * FROM entries WHERE source_id = ? AND uid = ?`, sourceID, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch entry: %w", err)
	}
	return &entry, nil
}

// EntriesBySource returns a source's entries, newest published first.
func (s *Store) EntriesBySource(ctx context.Context, sourceID int64) ([]*models.Entry, error) {
	var entries []*models.Entry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT * FROM entries WHERE source_id = ?
		ORDER BY published_at DESC, inserted_at DESC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// CountEntries counts a source's entries.
func (s *Store) CountEntries(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM entries WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}
