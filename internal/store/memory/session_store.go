package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

// SessionStore keeps refresh sessions in memory, indexed by session and by user.
type SessionStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	byID   map[uuid.UUID]models.Session
	byUser map[int64]map[uuid.UUID]struct{}
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		now:    time.Now,
		byID:   make(map[uuid.UUID]models.Session),
		byUser: make(map[int64]map[uuid.UUID]struct{}),
	}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[session.SessionID] = *session

	ids, ok := s.byUser[session.UserID]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		s.byUser[session.UserID] = ids
	}
	ids[session.SessionID] = struct{}{}

	return nil
}

// Get returns the session, or store.ErrSessionExpired once it is past ExpiresAt.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.byID[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	if s.now().After(session.ExpiresAt) {
		return nil, store.ErrSessionExpired
	}

	return &session, nil
}

func (s *SessionStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	session.LastUsedAt = s.now()
	s.byID[sessionID] = session

	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remove(sessionID) {
		return store.ErrSessionNotFound
	}
	return nil
}

// DeleteByUser drops every session of the user and reports how many there were.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byUser[userID]
	for id := range ids {
		delete(s.byID, id)
	}
	delete(s.byUser, userID)

	return len(ids), nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, session := range s.byID {
		if now.After(session.ExpiresAt) && s.remove(id) {
			n++
		}
	}

	return n, nil
}

// remove must be called with mu held.
func (s *SessionStore) remove(sessionID uuid.UUID) bool {
	session, ok := s.byID[sessionID]
	if !ok {
		return false
	}
	delete(s.byID, sessionID)

	if ids := s.byUser[session.UserID]; ids != nil {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
	return true
}
