package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/model"
)

// SessionStore persists model.Session rows.
type SessionStore struct {
	db *sqlx.DB
}

func NewSessionStore(db *sqlx.DB) *SessionStore { return &SessionStore{db: db} }

func (s *SessionStore) Create(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, sandbox_id, profile_name, status, containers_json, created_at, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SandboxID, sess.ProfileName, sess.Status, sess.ContainersJSON, sess.CreatedAt, sess.FailureReason,
	)
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.GetContext(ctx, &sess, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "session not found")
	}
	return &sess, err
}

// ActiveForSandbox returns the most recent running (non-terminal) session
// for a sandbox, if any.
func (s *SessionStore) ActiveForSandbox(ctx context.Context, sandboxID string) (*model.Session, error) {
	var sess model.Session
	err := s.db.GetContext(ctx, &sess, `
		SELECT * FROM sessions
		WHERE sandbox_id = ? AND status IN ('pending', 'starting', 'running', 'degraded')
		ORDER BY created_at DESC LIMIT 1`, sandboxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &sess, err
}

func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status model.SessionStatus, failureReason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, failure_reason = ? WHERE id = ?`, status, failureReason, id)
	return err
}

func (s *SessionStore) SetContainers(ctx context.Context, id string, containersJSON string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET containers_json = ? WHERE id = ?`, containersJSON, id)
	return err
}

func (s *SessionStore) MarkReady(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, ready_at = ? WHERE id = ?`, model.SessionRunning, now, id)
	return err
}

func (s *SessionStore) MarkStopped(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, stopped_at = ? WHERE id = ?`, model.SessionStopped, now, id)
	return err
}

// ListRunning returns all sessions in a live state, used by orphan
// container GC to know which container IDs are still claimed.
func (s *SessionStore) ListRunning(ctx context.Context) ([]*model.Session, error) {
	var rows []*model.Session
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sessions WHERE status IN ('pending', 'starting', 'running', 'degraded')`)
	return rows, err
}

// ExistsWithID reports whether a session row with this id exists at all,
// regardless of status. Used by orphan-container GC's strict safety check:
// a container is only reaped if no session row claims it, live or not.
func (s *SessionStore) ExistsWithID(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id)
	return n > 0, err
}
