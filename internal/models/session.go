package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a user's refresh session.
// The session ID is the jti claim of the refresh token, while the session record lives server-side.
type Session struct {
	SessionID uuid.UUID // UUIDv7
	UserID    int64

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}
