// ABOUTME: Source row operations: reads, due-source query, and partial ledger updates
// ABOUTME: Partial updates are built from Fields maps so only changed columns are written

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"refeed/internal/models"
)

// CreateSource inserts a new source and fills in its assigned id.
func (s *Store) CreateSource(ctx context.Context, src *models.Source) error {
	const q = `
		INSERT INTO sources (url, title, link, language, mode, etag, last_modified,
			refreshed_at, last_error, next_due_at, retry_count, created_at)
		VALUES (:url, :title, :link, :language, :mode, :etag, :last_modified,
			:refreshed_at, :last_error, :next_due_at, :retry_count, :created_at)`
	res, err := s.db.NamedExecContext(ctx, q, src)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read source id: %w", err)
	}
	src.ID = id
	return nil
}

// SourceByID retrieves a source, returning ErrNotFound when absent.
func (s *Store) SourceByID(ctx context.Context, id int64) (*models.Source, error) {
	var src models.Source
	err := s.db.GetContext(ctx, &src, `SELECT * FROM sources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	return &src, nil
}

// SourceByURL retrieves a source by its feed URL, returning ErrNotFound when
// absent.
func (s *Store) SourceByURL(ctx context.Context, url string) (*models.Source, error) {
	var src models.Source
	err := s.db.GetContext(ctx, &src, `SELECT * FROM sources WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	return &src, nil
}

// DeleteSource removes a source and, through the cascade, its entries.
// Deleting an absent id returns ErrNotFound.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSources returns all sources ordered by id.
func (s *Store) ListSources(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := s.db.SelectContext(ctx, &sources, `SELECT * FROM sources ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// DueSources returns the sources whose next refresh is due at now. Manual
// sources are never due. At launch the criteria relax: sources that have
// never completed a refresh, or whose due time falls inside the grace window,
// are picked up as well.
func (s *Store) DueSources(ctx context.Context, now time.Time, atLaunch bool, grace time.Duration) ([]*models.Source, error) {
	horizon := now
	if atLaunch {
		horizon = now.Add(grace)
	}

	due := sq.Or{
		sq.Eq{"next_due_at": nil},
		sq.LtOrEq{"next_due_at": horizon},
	}
	if atLaunch {
		due = append(due, sq.Eq{"refreshed_at": nil})
	}

	query, args, err := sq.Select("*").
		From("sources").
		Where(sq.And{sq.NotEq{"mode": models.ModeManual}, due}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due query: %w", err)
	}

	var sources []*models.Source
	if err := s.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	return sources, nil
}

// NextDueTime returns the earliest scheduled refresh across non-manual
// sources, or nil when nothing is scheduled.
func (s *Store) NextDueTime(ctx context.Context) (*time.Time, error) {
	var next time.Time
	err := s.db.GetContext(ctx, &next, `
		SELECT next_due_at FROM sources
		WHERE mode != ? AND next_due_at IS NOT NULL
		ORDER BY next_due_at ASC LIMIT 1`, models.ModeManual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next due time: %w", err)
	}
	return &next, nil
}

// UpdateSourceFields writes a partial update outside a cycle transaction.
func (s *Store) UpdateSourceFields(ctx context.Context, id int64, fields Fields) error {
	return updateSource(ctx, s.db, id, fields)
}

// SetSourceFields writes a partial update as part of the cycle transaction.
func (t *Tx) SetSourceFields(ctx context.Context, id int64, fields Fields) error {
	return updateSource(ctx, t.tx, id, fields)
}

func updateSource(ctx context.Context, ext sqlx.ExtContext, id int64, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	query, args, err := sq.Update("sources").
		SetMap(map[string]interface{}(fields)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build source update: %w", err)
	}
	if _, err := ext.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// SourceStats is one row of the status view.
type SourceStats struct {
	ID          int64      `db:"id"`
	URL         string     `db:"url"`
	Title       *string    `db:"title"`
	Mode        string     `db:"mode"`
	RefreshedAt *time.Time `db:"refreshed_at"`
	NextDueAt   *time.Time `db:"next_due_at"`
	RetryCount  int        `db:"retry_count"`
	LastError   *string    `db:"last_error"`
	EntryCount  int        `db:"entry_count"`
}

// Stats retrieves ledger state plus entry counts for all sources in a single
// query.
func (s *Store) Stats(ctx context.Context) ([]SourceStats, error) {
	var stats []SourceStats
	err := s.db.SelectContext(ctx, &stats, `
		SELECT
			s.id, s.url, s.title, s.mode, s.refreshed_at, s.next_due_at,
			s.retry_count, s.last_error,
			COALESCE(COUNT(e.id), 0) AS entry_count
		FROM sources s
		LEFT JOIN entries e ON s.id = e.source_id
		GROUP BY s.id
		ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("query source stats: %w", err)
	}
	return stats, nil
}
