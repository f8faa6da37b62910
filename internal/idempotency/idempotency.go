// Package idempotency implements the Idempotency Service: caching the
// response of a write request under a client-supplied key so a retried
// request with an identical fingerprint replays the original response
// instead of re-executing the operation, and a retried request with a
// different body under the same key is rejected as a conflict.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/store"
)

// Service caches idempotent responses keyed by (owner, key).
type Service struct {
	store *store.IdempotencyStore
	ttl   time.Duration
}

func New(st *store.IdempotencyStore, ttl time.Duration) *Service {
	return &Service{store: st, ttl: ttl}
}

// Fingerprint derives the stable hash of a request used to detect a key
// reused with a different body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte("\n"))
	h.Write([]byte(path))
	h.Write([]byte("\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns a previously cached response for (ownerID, key) if one
// exists, is not expired, and was recorded for the same fingerprint. If
// the key exists with a different fingerprint, it returns a conflict
// error. If no entry exists (or it expired), it returns (nil, nil) to
// signal the caller should execute the operation.
func (s *Service) Lookup(ctx context.Context, ownerID, key, fingerprint string) (*model.IdempotencyKey, error) {
	if key == "" {
		return nil, nil
	}
	row, err := s.store.Get(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	if row.IsExpired(time.Now()) {
		return nil, nil
	}
	if row.Fingerprint != fingerprint {
		return nil, apperror.New(apperror.KindConflict, "idempotency key reused with a different request body")
	}
	return row, nil
}

// Store records the outcome of an operation under (ownerID, key).
func (s *Service) Store(ctx context.Context, ownerID, key, fingerprint string, responseCode int, responseBody string) error {
	if key == "" {
		return nil
	}
	now := time.Now()
	return s.store.Put(ctx, &model.IdempotencyKey{
		OwnerID:      ownerID,
		Key:          key,
		Fingerprint:  fingerprint,
		ResponseCode: responseCode,
		ResponseBody: responseBody,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	})
}

// Sweep deletes expired cache rows. The server does not run it on a
// schedule; Lookup already treats expired rows as absent.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, time.Now())
}
