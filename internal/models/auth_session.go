package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthSession is a dashboard login (cookie-based auth). It is unrelated to
// MonitoringSession.
type AuthSession struct {
	ID        string    `json:"id"` // opaque token
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at now.
func (a *AuthSession) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// AuthSessionStore provides data access methods for login sessions.
type AuthSessionStore struct {
	pool *pgxpool.Pool
}

// NewAuthSessionStore creates a new AuthSessionStore.
func NewAuthSessionStore(pool *pgxpool.Pool) *AuthSessionStore {
	return &AuthSessionStore{pool: pool}
}

// Create inserts a new session.
func (s *AuthSessionStore) Create(ctx context.Context, session *AuthSession) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO auth_sessions (id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, session.ID, session.UserID, session.ExpiresAt).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("auth session create: %w", err)
	}
	return nil
}

// GetByToken returns a session by its token string.
func (s *AuthSessionStore) GetByToken(ctx context.Context, token string) (*AuthSession, error) {
	var sess AuthSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, expires_at, created_at
		FROM auth_sessions
		WHERE id = $1
	`, token).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auth session get: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("auth session get: %w", err)
	}
	return &sess, nil
}

// Delete removes a session by its token.
func (s *AuthSessionStore) Delete(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, token)
	if err != nil {
		return fmt.Errorf("auth session delete: %w", err)
	}
	return nil
}

// DeleteExpired removes every session past its expiry and returns how many
// were removed.
func (s *AuthSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("auth session delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
