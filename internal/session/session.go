// Package session holds per-conversation input state.
package session

import (
	"sync"
	"time"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/command"
)

// DefaultTTL is how long the bot waits for the requested input.
const DefaultTTL = 10 * time.Minute

// Key identifies one conversation: a user in a chat.
type Key struct {
	ChatID int64
	UserID int64
}

// State is what a conversation is waiting for.
type State struct {
	Mode    command.InputMode
	EventID string
	GroupID int64
	Expires time.Time
}

// Store keeps conversation states with expiry.
type Store struct {
	mu     sync.Mutex
	states map[Key]State
	ttl    time.Duration
	clock  clock.Clock
}

// NewStore creates an empty store. A zero ttl uses DefaultTTL.
func NewStore(clk clock.Clock, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		states: make(map[Key]State),
		ttl:    ttl,
		clock:  clk,
	}
}

// Begin starts waiting for input, replacing any earlier state.
func (s *Store) Begin(key Key, mode command.InputMode, groupID int64, eventID string) State {
	st := State{
		Mode:    mode,
		EventID: eventID,
		GroupID: groupID,
		Expires: s.clock.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.states[key] = st
	s.mu.Unlock()
	return st
}

// Get returns the active state for key. Expired states are dropped.
func (s *Store) Get(key Key) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		return State{}, false
	}
	if !s.clock.Now().Before(st.Expires) {
		delete(s.states, key)
		return State{}, false
	}
	return st, true
}

// Take returns and clears the active state for key.
func (s *Store) Take(key Key) (State, bool) {
	st, ok := s.Get(key)
	if ok {
		s.Clear(key)
	}
	return st, ok
}

// Clear forgets any state for key.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()
}

// Prune removes expired states and returns how many were dropped.
func (s *Store) Prune() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, st := range s.states {
		if !now.Before(st.Expires) {
			delete(s.states, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored states, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
