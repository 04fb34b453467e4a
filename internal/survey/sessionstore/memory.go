package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/survey"
)

type memoryEntry struct {
	data []byte
	exp  time.Time
}

// Memory is the in-process session store used by tests and the CLI
// simulator. Sessions round-trip through JSON exactly like the Redis store,
// and expiry is checked lazily on read.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	locks    map[string]bool
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory creates an in-memory session store. A non-positive ttl falls
// back to DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]bool),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get loads a session by id.
func (m *Memory) Get(_ context.Context, id string) (*survey.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok || m.now().After(entry.exp) {
		delete(m.sessions, id)
		return nil, errs.NotFound("survey session %s", id)
	}
	var sess survey.Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode survey session %s: %w", id, err)
	}
	return &sess, nil
}

// Put upserts a session, refreshing its TTL.
func (m *Memory) Put(_ context.Context, sess *survey.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode survey session %s: %w", sess.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = memoryEntry{data: data, exp: m.now().Add(m.ttl)}
	return nil
}

// sweep drops expired sessions and returns how many were removed.
func (m *Memory) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, entry := range m.sessions {
		if now.After(entry.exp) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Acquire takes the session's step lock, failing with a conflict while
// another step is in flight.
func (m *Memory) Acquire(_ context.Context, id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[id] {
		return nil, errs.Conflict("survey session %s has a step in flight", id)
	}
	m.locks[id] = true

	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, id)
	}
	return release, nil
}
