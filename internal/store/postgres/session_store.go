package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

// SessionStore implements store.SessionStore on the sessions table.
type SessionStore struct {
	db  dbtx
	now func() time.Time
}

var _ store.SessionStore = (*SessionStore)(nil)

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: pool, now: time.Now}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	// An empty address is stored as NULL rather than failing the inet cast
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (
			session_id, user_id, created_at, expires_at, last_used_at, user_agent, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::inet)`,
		session.SessionID, session.UserID,
		session.CreatedAt, session.ExpiresAt, session.LastUsedAt,
		session.UserAgent, session.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Int64("user_id", session.UserID).
		Msg("Created session")

	return nil
}

// Get returns the session, or store.ErrSessionExpired once it is past expires_at.
// Expired rows stay until DeleteExpired removes them.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRow(ctx, `
		SELECT session_id, user_id, created_at, expires_at, last_used_at,
		       user_agent, COALESCE(host(ip_address), '')
		FROM sessions
		WHERE session_id = $1`, sessionID).Scan(
		&session.SessionID, &session.UserID,
		&session.CreatedAt, &session.ExpiresAt, &session.LastUsedAt,
		&session.UserAgent, &session.IPAddress,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, store.ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	if s.now().After(session.ExpiresAt) {
		return nil, store.ErrSessionExpired
	}

	return &session, nil
}

func (s *SessionStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions SET last_used_at = $2 WHERE session_id = $1`, sessionID, s.now())
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	n, err := s.deleteWhere(ctx, "session_id = $1", sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// DeleteByUser removes every session of the user, logging them out everywhere.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	n, err := s.deleteWhere(ctx, "user_id = $1", userID)
	if err != nil {
		return 0, err
	}

	log.Info().Int64("user_id", userID).Int("count", n).Msg("Deleted all sessions for user")
	return n, nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	n, err := s.deleteWhere(ctx, "expires_at < $1", s.now())
	if err != nil {
		return 0, err
	}

	if n > 0 {
		log.Info().Int("count", n).Msg("Deleted expired sessions")
	}
	return n, nil
}

func (s *SessionStore) deleteWhere(ctx context.Context, cond string, arg any) (int, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM sessions WHERE "+cond, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", mapPostgresError(err))
	}
	return int(tag.RowsAffected()), nil
}
