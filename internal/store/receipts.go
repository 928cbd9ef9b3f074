package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Receipt is the idempotency record proving a specific upstream delivery was
// already processed.
type Receipt struct {
	Provider    string
	EventID     string
	EventHash   string
	ProcessedAt time.Time
	ExpiresAt   time.Time
}

// PutReceipt conditionally records a webhook delivery. It returns true when
// the receipt was created, false when a receipt for (provider, eventID)
// already exists. The failed insert is the authoritative duplicate signal;
// callers must treat false as "already processed" and not retry.
func (s *Store) PutReceipt(ctx context.Context, provider, eventID, eventHash string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_receipts (provider, event_id, event_hash, processed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID, eventHash, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("receipt rows affected: %w", err)
	}
	return n == 1, nil
}

// GetReceipt loads a receipt, or nil when none exists.
func (s *Store) GetReceipt(ctx context.Context, provider, eventID string) (*Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT provider, event_id, event_hash, processed_at, expires_at
		 FROM webhook_receipts WHERE provider = ? AND event_id = ?`,
		provider, eventID,
	)
	var r Receipt
	var processed, expires int64
	if err := row.Scan(&r.Provider, &r.EventID, &r.EventHash, &processed, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query receipt: %w", err)
	}
	r.ProcessedAt = time.Unix(processed, 0).UTC()
	r.ExpiresAt = time.Unix(expires, 0).UTC()
	return &r, nil
}

// PurgeExpiredReceipts deletes receipts whose TTL has passed and returns the
// number removed.
func (s *Store) PurgeExpiredReceipts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_receipts WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge receipts: %w", err)
	}
	return res.RowsAffected()
}
