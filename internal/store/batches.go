package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
)

// BatchStatus enumerates batch lifecycle states. Only active batches mutate;
// building, completed, and failed are one-way transitions.
type BatchStatus string

const (
	BatchActive    BatchStatus = "active"
	BatchBuilding  BatchStatus = "building"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Batch is an accumulating, time- and size-bounded group of build-worthy
// content events awaiting one aggregated build.
type Batch struct {
	BatchID            string
	ClientID           string
	Status             BatchStatus
	EventCount         int
	Events             []content.Event
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ScheduledBuildTime time.Time
	BatchWindowSeconds int
	IsBulkOperation    bool
	BuildID            string
	LastError          string
	ExpiresAt          time.Time
}

// ErrActiveBatchExists is returned by CreateBatch when another active batch
// already holds the per-client slot. The losing writer re-reads and extends.
var ErrActiveBatchExists = errors.New("an active batch already exists for client")

// ErrBatchNotFound is returned when a batch id does not exist.
var ErrBatchNotFound = errors.New("batch not found")

// CreateBatch inserts a new active batch. The partial unique index on
// (client_id) WHERE status='active' enforces the single-active-batch
// invariant; a violation maps to ErrActiveBatchExists.
func (s *Store) CreateBatch(ctx context.Context, b *Batch) error {
	eventsJSON, err := json.Marshal(b.Events)
	if err != nil {
		return fmt.Errorf("marshal batch events: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (batch_id, client_id, status, event_count, events, created_at, updated_at,
			scheduled_build_time, batch_window_seconds, is_bulk, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BatchID, b.ClientID, string(BatchActive), b.EventCount, string(eventsJSON),
		b.CreatedAt.Unix(), b.UpdatedAt.Unix(), b.ScheduledBuildTime.Unix(),
		b.BatchWindowSeconds, boolToInt(b.IsBulkOperation), b.ExpiresAt.Unix(),
	)
	if isUniqueViolation(err) {
		return ErrActiveBatchExists
	}
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetActiveBatch returns the client's active batch, or nil when none exists.
func (s *Store) GetActiveBatch(ctx context.Context, clientID string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx,
		batchSelect+` WHERE client_id = ? AND status = ?`, clientID, string(BatchActive))
	return scanBatch(row)
}

// GetBatch loads a batch by id, returning ErrBatchNotFound when absent.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, batchSelect+` WHERE batch_id = ?`, batchID)
	b, err := scanBatch(row)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

// ExtendBatch appends events to an active batch using a compare-and-swap on
// (status, event_count). It returns false when the swap lost: the batch was
// concurrently extended, triggered, or completed, and the caller must re-read
// and retry its decision.
func (s *Store) ExtendBatch(ctx context.Context, batchID string, expectedCount int, events []content.Event) (bool, error) {
	current, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if current.Status != BatchActive || current.EventCount != expectedCount {
		return false, nil
	}

	merged := append(append([]content.Event{}, current.Events...), events...)
	eventsJSON, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("marshal batch events: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET event_count = ?, events = ?, updated_at = ?
		 WHERE batch_id = ? AND status = ? AND event_count = ?`,
		len(merged), string(eventsJSON), time.Now().UTC().Unix(),
		batchID, string(BatchActive), expectedCount,
	)
	if err != nil {
		return false, fmt.Errorf("extend batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkBuilding transitions active -> building. Returns false when the batch
// was not active (already triggered or completed), which callers treat as a
// benign no-op.
func (s *Store) MarkBuilding(ctx context.Context, batchID string) (bool, error) {
	return s.transition(ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE batch_id = ? AND status = ?`,
		string(BatchBuilding), time.Now().UTC().Unix(), batchID, string(BatchActive))
}

// CompleteBatch transitions building -> completed and records the build id.
func (s *Store) CompleteBatch(ctx context.Context, batchID, buildID string) (bool, error) {
	return s.transition(ctx,
		`UPDATE batches SET status = ?, build_id = ?, updated_at = ? WHERE batch_id = ? AND status = ?`,
		string(BatchCompleted), buildID, time.Now().UTC().Unix(), batchID, string(BatchBuilding))
}

// FailBatch marks a batch failed from either active or building and records
// the error. A batch must never stay silently active after a trigger failure.
func (s *Store) FailBatch(ctx context.Context, batchID, errMsg string) (bool, error) {
	return s.transition(ctx,
		`UPDATE batches SET status = ?, last_error = ?, updated_at = ? WHERE batch_id = ? AND status IN (?, ?)`,
		string(BatchFailed), errMsg, time.Now().UTC().Unix(), batchID,
		string(BatchActive), string(BatchBuilding))
}

// ListOverdueBatches returns active batches whose scheduled build time has
// passed. After a restart the in-memory expiry triggers are gone; this lets a
// maintenance sweep pick the stranded batches back up.
func (s *Store) ListOverdueBatches(ctx context.Context, now time.Time) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		batchSelect+` WHERE status = ? AND scheduled_build_time <= ?`,
		string(BatchActive), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("list overdue batches: %w", err)
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatchRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PurgeExpiredBatches deletes terminal batches past their TTL.
func (s *Store) PurgeExpiredBatches(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM batches WHERE expires_at <= ? AND status IN (?, ?)`,
		now.Unix(), string(BatchCompleted), string(BatchFailed))
	if err != nil {
		return 0, fmt.Errorf("purge batches: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("batch transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return n == 1, nil
}

const batchSelect = `SELECT batch_id, client_id, status, event_count, events, created_at, updated_at,
	scheduled_build_time, batch_window_seconds, is_bulk, build_id, last_error, expires_at FROM batches`

func scanBatch(row *sql.Row) (*Batch, error) {
	b, err := scanBatchFrom(row.Scan)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func scanBatchRows(rows *sql.Rows) (*Batch, error) {
	return scanBatchFrom(rows.Scan)
}

func scanBatchFrom(scan func(dest ...any) error) (*Batch, error) {
	var b Batch
	var status, eventsJSON string
	var created, updated, scheduled, expires int64
	var isBulk int
	err := scan(&b.BatchID, &b.ClientID, &status, &b.EventCount, &eventsJSON,
		&created, &updated, &scheduled, &b.BatchWindowSeconds, &isBulk,
		&b.BuildID, &b.LastError, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	if err := json.Unmarshal([]byte(eventsJSON), &b.Events); err != nil {
		return nil, fmt.Errorf("unmarshal batch events: %w", err)
	}
	b.Status = BatchStatus(status)
	b.CreatedAt = time.Unix(created, 0).UTC()
	b.UpdatedAt = time.Unix(updated, 0).UTC()
	b.ScheduledBuildTime = time.Unix(scheduled, 0).UTC()
	b.IsBulkOperation = isBulk == 1
	b.ExpiresAt = time.Unix(expires, 0).UTC()
	return &b, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
