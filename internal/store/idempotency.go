package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shipyard-neo/bay/internal/model"
)

// IdempotencyStore persists model.IdempotencyKey rows.
type IdempotencyStore struct {
	db *sqlx.DB
}

func NewIdempotencyStore(db *sqlx.DB) *IdempotencyStore { return &IdempotencyStore{db: db} }

func (s *IdempotencyStore) Get(ctx context.Context, ownerID, key string) (*model.IdempotencyKey, error) {
	var row model.IdempotencyKey
	err := s.db.GetContext(ctx, &row, `SELECT * FROM idempotency_keys WHERE owner_id = ? AND key = ?`, ownerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &row, err
}

func (s *IdempotencyStore) Put(ctx context.Context, row *model.IdempotencyKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (owner_id, key, fingerprint, response_code, response_body, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			response_code = excluded.response_code,
			response_body = excluded.response_body,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		row.OwnerID, row.Key, row.Fingerprint, row.ResponseCode, row.ResponseBody, row.CreatedAt, row.ExpiresAt,
	)
	return err
}

// DeleteExpired removes cache rows past their TTL. Expiry here is lazy
// (checked on read via IsExpired) but this keeps the table from growing
// without bound.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
