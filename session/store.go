// Package session keeps per-browser portal state in memory: the catalog
// cursor, the chat conversation and saved speech messages.
package session

import (
	"sync"
	"time"

	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/metrics"
	"github.com/google/uuid"
)

// Compile-time check to ensure Store implements SessionStore
var _ interfaces.SessionStore = (*Store)(nil)

// ErrNotFound is returned for unknown or expired session ids
var ErrNotFound = interfaces.ErrSessionNotFound

// Store is an in-memory SessionStore with idle expiry
type Store struct {
	mu       sync.Mutex
	sessions map[string]*interfaces.SessionState
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a store whose sessions expire after ttl without activity
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*interfaces.SessionState),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new session with default cursor and speech options
func (s *Store) Create() interfaces.SessionState {
	now := s.now()
	state := &interfaces.SessionState{
		ID:          uuid.New().String(),
		Cursor:      interfaces.NewCursor(),
		ChatHistory: []interfaces.ChatTurn{},
		Messages:    []interfaces.SavedMessage{},
		Speech:      interfaces.DefaultSpeechOptions(),
		CreatedAt:   now,
		LastSeen:    now,
	}

	s.mu.Lock()
	s.sessions[state.ID] = state
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	return state.Clone()
}

// Get returns a copy of the session and refreshes its idle timer
func (s *Store) Get(id string) (interfaces.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.live(id)
	if !ok {
		return interfaces.SessionState{}, false
	}
	state.LastSeen = s.now()
	return state.Clone(), true
}

// Update applies fn to the session under the store lock.
// The state is left untouched when fn returns an error.
func (s *Store) Update(id string, fn func(*interfaces.SessionState) error) (interfaces.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.live(id)
	if !ok {
		return interfaces.SessionState{}, ErrNotFound
	}

	draft := state.Clone()
	if err := fn(&draft); err != nil {
		return state.Clone(), err
	}
	draft.ID = state.ID
	draft.LastSeen = s.now()
	*state = draft
	return draft.Clone(), nil
}

// Delete forgets a session
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
}

// Sweep removes sessions idle for longer than the TTL and returns how many were removed
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := 0
	for id, state := range s.sessions {
		if s.expired(state, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	return removed
}

// Len returns the number of stored sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// live returns a non-expired session; callers hold s.mu
func (s *Store) live(id string) (*interfaces.SessionState, bool) {
	state, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(state, s.now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return state, true
}

func (s *Store) expired(state *interfaces.SessionState, now time.Time) bool {
	return s.ttl > 0 && now.Sub(state.LastSeen) > s.ttl
}
