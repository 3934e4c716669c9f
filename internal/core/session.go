package core

import (
	"sync"

	"github.com/prajyot7070/MetaSpace/internal/domain"
)

type sessionImpl struct {
	id     domain.UserID
	signal SignalConnection

	mu  sync.RWMutex
	pos domain.Point
}

// NewSession binds a fresh identity to a signal connection. The position
// starts at the given spawn point.
func NewSession(id domain.UserID, spawn domain.Point, signal SignalConnection) MemberSession {
	return &sessionImpl{id: id, signal: signal, pos: spawn}
}

func (s *sessionImpl) ID() domain.UserID { return s.id }

func (s *sessionImpl) Position() domain.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos
}

func (s *sessionImpl) SetPosition(p domain.Point) {
	s.mu.Lock()
	s.pos = p
	s.mu.Unlock()
}

func (s *sessionImpl) Signal() SignalConnection { return s.signal }
