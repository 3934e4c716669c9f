package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
)

var ErrTokenNotFound = errors.New("group token not found")

type memoryEntry struct {
	members   map[domain.UserID]struct{}
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	clock   clock.Clock
}

// NewMemory is the single-process Group Store. Entries expire lazily on
// access, matching the Redis TTL semantics.
func NewMemory(ttl time.Duration) core.GroupStore {
	return NewMemoryWithClock(ttl, clock.New())
}

func NewMemoryWithClock(ttl time.Duration, c clock.Clock) core.GroupStore {
	return &memoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		clock:   c,
	}
}

// get prunes an expired entry before returning it. Caller holds s.mu.
func (s *memoryStore) get(token string) (*memoryEntry, bool) {
	e, ok := s.entries[token]
	if !ok {
		return nil, false
	}
	if s.clock.Now().After(e.expiresAt) {
		delete(s.entries, token)
		return nil, false
	}
	return e, true
}

func (s *memoryStore) Store(_ context.Context, token string, members []domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &memoryEntry{
		members:   make(map[domain.UserID]struct{}, len(members)),
		expiresAt: s.clock.Now().Add(s.ttl),
	}
	for _, m := range members {
		e.members[m] = struct{}{}
	}
	s.entries[token] = e
	return nil
}

func (s *memoryStore) AddMembers(_ context.Context, token string, members ...domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(token)
	if !ok {
		return ErrTokenNotFound
	}
	for _, m := range members {
		e.members[m] = struct{}{}
	}
	e.expiresAt = s.clock.Now().Add(s.ttl)
	return nil
}

func (s *memoryStore) RemoveMembers(_ context.Context, token string, members ...domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(token)
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(e.members, m)
	}
	return nil
}

func (s *memoryStore) Members(_ context.Context, token string) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(token)
	if !ok {
		return []domain.UserID{}, nil
	}
	out := make([]domain.UserID, 0, len(e.members))
	for m := range e.members {
		out = append(out, m)
	}
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
