// Package engine implements the multi-turn slot-filling conversation engine.
//
// A session holds the single in-flight draft for a user. All handling for a
// given user runs inside that user's critical section, so two concurrent
// utterances from the same user can never interleave their read-merge-commit
// cycles. Different users proceed in parallel.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

// DefaultIdleTimeout is how long an abandoned draft survives before purge.
const DefaultIdleTimeout = 10 * time.Minute

type sessionKey struct {
	userID string
	kind   models.RecordKind
}

type session struct {
	draft      *models.Draft
	lastActive time.Time
}

// SessionStore keeps in-flight drafts in memory, keyed by user and record
// kind, and hands out the per-user locks that serialize utterance handling.
type SessionStore struct {
	mu          sync.Mutex
	sessions    map[sessionKey]*session
	activeKind  map[string]models.RecordKind
	userLocks   map[string]*sync.Mutex
	idleTimeout time.Duration
}

// NewSessionStore creates an empty session store. A non-positive idleTimeout
// falls back to DefaultIdleTimeout.
func NewSessionStore(idleTimeout time.Duration) *SessionStore {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &SessionStore{
		sessions:    make(map[sessionKey]*session),
		activeKind:  make(map[string]models.RecordKind),
		userLocks:   make(map[string]*sync.Mutex),
		idleTimeout: idleTimeout,
	}
}

// UserLock returns the mutex serializing all handling for one user. The lock
// is created on first use and never removed; the per-user footprint is one
// mutex, which is acceptable for a household-scale user population.
func (s *SessionStore) UserLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// Active returns the user's current in-flight draft, or nil when the user has
// no open conversation.
func (s *SessionStore) Active(userID string) *models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind, ok := s.activeKind[userID]
	if !ok {
		return nil
	}
	sess, ok := s.sessions[sessionKey{userID: userID, kind: kind}]
	if !ok {
		return nil
	}
	return sess.draft
}

// Get returns the draft for a specific user and kind, or nil.
func (s *SessionStore) Get(userID string, kind models.RecordKind) *models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey{userID: userID, kind: kind}]
	if !ok {
		return nil
	}
	return sess.draft
}

// Put stores the draft and marks its kind as the user's active conversation.
func (s *SessionStore) Put(draft *models.Draft) {
	if draft == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey{userID: draft.UserID, kind: draft.Kind}
	s.sessions[key] = &session{draft: draft, lastActive: time.Now()}
	s.activeKind[draft.UserID] = draft.Kind
	slog.Debug("SessionStore.Put: draft stored", "userID", draft.UserID, "kind", draft.Kind, "awaitingField", draft.AwaitingField)
}

// Clear removes the draft for a user and kind. If it was the active
// conversation, the user no longer has one.
func (s *SessionStore) Clear(userID string, kind models.RecordKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey{userID: userID, kind: kind})
	if s.activeKind[userID] == kind {
		delete(s.activeKind, userID)
	}
	slog.Debug("SessionStore.Clear: draft cleared", "userID", userID, "kind", kind)
}

// PurgeIdle drops drafts whose last activity predates the idle timeout and
// returns how many were removed.
func (s *SessionStore) PurgeIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.lastActive) > s.idleTimeout {
			delete(s.sessions, key)
			if s.activeKind[key.userID] == key.kind {
				delete(s.activeKind, key.userID)
			}
			purged++
		}
	}
	if purged > 0 {
		slog.Info("SessionStore.PurgeIdle: idle drafts purged", "count", purged)
	}
	return purged
}

// Len reports how many drafts are currently in flight.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
