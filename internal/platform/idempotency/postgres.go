package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps keys in the idempotency_keys table created by the postgres schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const reserveSQL = `
INSERT INTO idempotency_keys (id, key, fingerprint, status, created_at, expires_at)
VALUES ($1, $2, $3, 'pending', $4, $5)
ON CONFLICT (id) DO UPDATE
    SET key = EXCLUDED.key,
        fingerprint = EXCLUDED.fingerprint,
        status = 'pending',
        response_status = 0,
        response_headers = NULL,
        response_body = NULL,
        created_at = EXCLUDED.created_at,
        expires_at = EXCLUDED.expires_at
    WHERE idempotency_keys.expires_at <= $4
RETURNING id`

const selectKeySQL = `
SELECT key, fingerprint, status, response_status, response_headers, response_body, created_at, expires_at
FROM idempotency_keys WHERE id = $1`

func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := documentID(key)

	var claimed string
	err := s.pool.QueryRow(ctx, reserveSQL, id, key, fingerprint, now, now.Add(ttl)).Scan(&claimed)
	switch {
	case err == nil:
		return Reservation{State: ReservationStateNew, Record: newPendingRecord(key, fingerprint, now, ttl)}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	return classify(record, fingerprint)
}

func (s *PostgresStore) load(ctx context.Context, id string) (Record, error) {
	var (
		record  Record
		status  string
		headers []byte
	)
	err := s.pool.QueryRow(ctx, selectKeySQL, id).Scan(
		&record.Key,
		&record.Fingerprint,
		&status,
		&record.ResponseStatus,
		&headers,
		&record.ResponseBody,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("idempotency: load: %w", err)
	}
	record.Status = Status(status)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &record.ResponseHeaders); err != nil {
			return Record{}, fmt.Errorf("idempotency: decode headers: %w", err)
		}
	}
	return record, nil
}

const completeSQL = `
UPDATE idempotency_keys
SET status = 'completed', response_status = $3, response_headers = $4, response_body = $5, expires_at = $6
WHERE id = $1 AND fingerprint = $2`

func (s *PostgresStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	headers, err := json.Marshal(storableHeaders(resp.Headers))
	if err != nil {
		return fmt.Errorf("idempotency: encode headers: %w", err)
	}
	tag, err := s.pool.Exec(ctx, completeSQL, documentID(key), fingerprint, resp.Status, headers, resp.Body, now.UTC().Add(ttl))
	if err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFingerprintMismatch
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE id = $1`, documentID(key)); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}
