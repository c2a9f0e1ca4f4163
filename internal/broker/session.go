package broker

import (
	"sync"

	"github.com/kapdap/cadence/internal/message"
)

// Store maps sessionId to Session, synchronizing creation and lookup across
// concurrent connections. Mutation of an individual Session's contents is
// serialized separately, through that session's actor.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for id, if any.
func (s *Store) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Put re-canonicalizes sess.ID through the message codec and recomputes its
// emptyAt field against now before storing it, keyed by the canonicalized
// id. It is the single choke point through which a session enters the map,
// so no caller can insert one under a raw id or with a stale emptiness
// flag.
func (s *Store) Put(sess *Session, now int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(sess, now)
}

func (s *Store) putLocked(sess *Session, now int64) *Session {
	sess.ID = message.CanonicalizeSessionID(sess.ID)
	if anyUserOnline(sess) {
		sess.EmptyAt = 0
	} else if sess.EmptyAt == 0 {
		sess.EmptyAt = now
	}
	s.sessions[sess.ID] = sess
	return sess
}

// GetOrCreate returns the existing session for id, or builds one with
// factory and stores it through Put, atomically with the existence check.
// isNew reports which branch was taken.
func (s *Store) GetOrCreate(sessionID string, now int64, factory func() *Session) (sess *Session, isNew bool) {
	canonical := message.CanonicalizeSessionID(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[canonical]; ok {
		return existing, false
	}

	sess = factory()
	return s.putLocked(sess, now), true
}

// Delete removes a session from the store.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Range calls fn for a snapshot of every session, stopping early if fn
// returns false. Sessions created or deleted during iteration are not
// observed.
func (s *Store) Range(fn func(sessionID string, sess *Session) bool) {
	s.mu.RLock()
	snapshot := make(map[string]*Session, len(s.sessions))
	for k, v := range s.sessions {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Len returns the number of sessions currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
