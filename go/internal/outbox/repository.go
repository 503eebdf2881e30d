package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/skjftp/fpl-auction-sub001/go/internal/sqlutil"
)

const recordCols = `id, event_type, auction_id, sequence, payload, headers, created_at, attempts`

// Repository reads and updates the outbox table over database/sql
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		payload []byte
		headers pqtype.NullRawMessage
	)
	if err := row.Scan(&rec.ID, &rec.EventType, &rec.AuctionID, &rec.Sequence, &payload, &headers, &rec.CreatedAt, &rec.Attempts); err != nil {
		return rec, err
	}
	rec.Payload = payload
	h, err := sqlutil.FromNullRawMessage(headers)
	if err != nil {
		return rec, fmt.Errorf("failed to decode headers of %s: %w", rec.ID, err)
	}
	rec.Headers = h
	return rec, nil
}

// FetchUnsent returns up to limit unsent rows, oldest first
func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM outbox WHERE sent_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM outbox WHERE id = $1 AND sent_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outbox event %s: %w", id, ErrNotPending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &rec, nil
}

// MarkSent stamps the row as delivered along with the headers it went out with
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, headers map[string]string) error {
	raw, err := sqlutil.ToNullRawMessage(headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE outbox SET sent_at = NOW(), headers = $2, attempts = attempts + 1 WHERE id = $1 AND sent_at IS NULL`,
			id, raw)
		if err != nil {
			return fmt.Errorf("failed to mark outbox event as sent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("outbox event %s: %w", id, ErrNotPending)
		}
		return nil
	})
}

// RecordFailure bumps the attempt counter and keeps the last error
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, sqlutil.ToNullString(cause.Error()))
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return n, nil
}
