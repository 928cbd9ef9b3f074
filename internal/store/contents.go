package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
)

// UpsertContent writes a unified content item, replacing any prior version of
// the same (provider, id). It reports whether a prior version existed, which
// the classifier uses to distinguish created from updated.
func (s *Store) UpsertContent(ctx context.Context, item content.Content) (hadPrior bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contents WHERE provider = ? AND id = ?`,
		item.ProviderName, item.ID).Scan(&existing); err != nil {
		return false, fmt.Errorf("check prior content: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO contents (provider, id, content_type, status, title, provider_type, created_at, updated_at, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, id) DO UPDATE SET
			content_type = excluded.content_type,
			status = excluded.status,
			title = excluded.title,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at`,
		item.ProviderName, item.ID, string(item.Type), string(item.Status), item.Title,
		string(item.ProviderType), item.CreatedAt.Unix(), item.UpdatedAt.Unix(), item.SyncedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert content: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return existing > 0, nil
}

// ContentFilter narrows ListContents results. Zero values mean "any".
type ContentFilter struct {
	Type     content.Type
	Provider string
	Status   content.Status
	Limit    int
}

// ListContents returns content items matching the filter, most recently
// updated first.
func (s *Store) ListContents(ctx context.Context, f ContentFilter) ([]content.Content, error) {
	query := `SELECT provider, id, content_type, status, title, provider_type, created_at, updated_at, synced_at FROM contents WHERE 1=1`
	args := []any{}
	if f.Type != "" {
		query += ` AND content_type = ?`
		args = append(args, string(f.Type))
	}
	if f.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, f.Provider)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY updated_at DESC`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	var items []content.Content
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetContent loads one content item by id. Returns nil when not found.
func (s *Store) GetContent(ctx context.Context, id string) (*content.Content, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT provider, id, content_type, status, title, provider_type, created_at, updated_at, synced_at
		 FROM contents WHERE id = ? LIMIT 1`, id)
	item, err := scanContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (content.Content, error) {
	var item content.Content
	var ctype, status, ptype string
	var created, updated, synced int64
	err := row.Scan(&item.ProviderName, &item.ID, &ctype, &status, &item.Title, &ptype, &created, &updated, &synced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("scan content: %w", err)
	}
	item.Type = content.Type(ctype)
	item.Status = content.Status(status)
	item.ProviderType = content.ProviderType(ptype)
	item.CreatedAt = time.Unix(created, 0).UTC()
	item.UpdatedAt = time.Unix(updated, 0).UTC()
	item.SyncedAt = time.Unix(synced, 0).UTC()
	return item, nil
}
