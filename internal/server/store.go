package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/babel/internal/model"
)

// ErrTooManySessions is returned when the store is full.
var ErrTooManySessions = errors.New("too many open sessions")

type sessionRecord struct {
	session  *model.Session
	lastUsed time.Time
}

// SessionStore holds open decode sessions by id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionRecord
	limit    int
}

// NewSessionStore creates a store holding at most limit sessions. Zero means
// no limit.
func NewSessionStore(limit int) *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*sessionRecord),
		limit:    limit,
	}
}

// Add stores s under its own id.
func (st *SessionStore) Add(s *model.Session, now time.Time) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.limit > 0 && len(st.sessions) >= st.limit {
		return ErrTooManySessions
	}
	st.sessions[s.ID()] = &sessionRecord{session: s, lastUsed: now}
	return nil
}

// Get returns the session with id.
func (st *SessionStore) Get(id uuid.UUID) (*model.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	return rec.session, true
}

// Touch marks the session with id as used at now.
func (st *SessionStore) Touch(id uuid.UUID, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if rec, ok := st.sessions[id]; ok {
		rec.lastUsed = now
	}
}

// Delete removes the session with id and reports whether it existed.
func (st *SessionStore) Delete(id uuid.UUID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

// Len returns the number of open sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Expire removes sessions last used before cutoff and returns how many were
// removed.
func (st *SessionStore) Expire(cutoff time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, rec := range st.sessions {
		if rec.lastUsed.Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
