// Package devotp provides an in-memory store for plain verification codes by
// request_id, used only when dev code echo is enabled (GET /v1/dev/otp/:request_id).
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes by request_id for dev-only retrieval. Not used in
// production.
type Store interface {
	// Put stores code for requestID until expiresAt.
	Put(ctx context.Context, requestID, code string, expiresAt time.Time)
	// Get returns the code for requestID if present and not expired.
	Get(ctx context.Context, requestID string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev code store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores code for requestID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, requestID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[requestID] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for requestID if present and not expired. Expired
// entries are deleted on read.
func (s *MemoryStore) Get(ctx context.Context, requestID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[requestID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, requestID)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
