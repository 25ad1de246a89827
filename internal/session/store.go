package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the number of turns kept per sender.
const DefaultWindow = 20

// entry is the store-owned state behind a Session.
type entry struct {
	turns      []Turn
	createdAt  time.Time
	lastActive time.Time
}

// Store maps sender keys to capped histories.
//
// Map access is guarded by a single RWMutex held only for short critical
// sections. Whole exchanges for one sender are serialized separately with
// Lock, so a slow inference call never blocks other senders.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	locks    *keyLocks
	window   int
	now      func() time.Time
}

// NewStore creates an empty store that keeps at most window turns per
// sender. A non-positive window selects DefaultWindow.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		sessions: make(map[string]*entry),
		locks:    newKeyLocks(),
		window:   window,
		now:      time.Now,
	}
}

// Window returns the per-sender turn cap.
func (s *Store) Window() int {
	return s.window
}

// GetOrCreate returns a copy of the session for key, registering an empty
// one first if the key is new.
func (s *Store) GetOrCreate(key string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(key)
	e.lastActive = s.now()
	return snapshot(key, e)
}

// Append adds a turn stamped with the current time and drops the oldest
// turns once the window is exceeded.
func (s *Store) Append(key string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(key)

	ts := s.now()
	if n := len(e.turns); n > 0 && ts.Before(e.turns[n-1].Timestamp) {
		ts = e.turns[n-1].Timestamp
	}
	e.turns = append(e.turns, Turn{Role: role, Content: content, Timestamp: ts})

	if over := len(e.turns) - s.window; over > 0 {
		// copy so the evicted prefix can be collected
		e.turns = append([]Turn(nil), e.turns[over:]...)
	}
	e.lastActive = ts
}

// Reset removes the session for key. Unknown keys are ignored.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Has reports whether a session exists for key.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[key]
	return ok
}

// Turns returns a copy of the turns stored for key, or nil.
func (s *Store) Turns(key string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[key]
	if !ok {
		return nil
	}
	return append([]Turn(nil), e.turns...)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Keys returns the sender keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Lock acquires the exchange lock for key and returns its release
// function. Different keys never contend.
func (s *Store) Lock(key string) (unlock func()) {
	return s.locks.lock(key)
}

// EvictIdle removes sessions not touched for longer than maxIdle and
// returns how many were removed. Sessions with an exchange in flight are
// kept.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for key, e := range s.sessions {
		if e.lastActive.After(cutoff) || s.locks.held(key) {
			continue
		}
		delete(s.sessions, key)
		removed++
	}
	return removed
}

// getOrCreateLocked requires s.mu to be held for writing.
func (s *Store) getOrCreateLocked(key string) *entry {
	e, ok := s.sessions[key]
	if !ok {
		now := s.now()
		e = &entry{createdAt: now, lastActive: now}
		s.sessions[key] = e
	}
	return e
}

func snapshot(key string, e *entry) Session {
	return Session{
		Key:        key,
		Turns:      append([]Turn(nil), e.turns...),
		CreatedAt:  e.createdAt,
		LastActive: e.lastActive,
	}
}
