package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/domain"
)

// spaceImpl is a threadsafe in-memory space.
// It never closes adapter-owned resources.
type spaceImpl struct {
	space *domain.Space
	mu    sync.RWMutex
	byID  map[domain.UserID]MemberSession
}

func NewSpaceService(space *domain.Space) SpaceService {
	return &spaceImpl{
		space: space,
		byID:  make(map[domain.UserID]MemberSession),
	}
}

func (s *spaceImpl) Space() *domain.Space { return s.space }

func (s *spaceImpl) MemberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *spaceImpl) AddMember(ms MemberSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[ms.ID()] = ms
	log.Info().Str("module", "core.space").Str("space", string(s.space.ID)).Str("user", string(ms.ID())).Msg("member added")
}

func (s *spaceImpl) RemoveMember(id domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	log.Info().Str("module", "core.space").Str("space", string(s.space.ID)).Str("user", string(id)).Msg("member removed")
}

func (s *spaceImpl) Get(id domain.UserID) (MemberSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.byID[id]
	return ms, ok
}

func (s *spaceImpl) Members() []MemberSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MemberSession, 0, len(s.byID))
	for _, ms := range s.byID {
		out = append(out, ms)
	}
	return out
}

func (s *spaceImpl) Snapshot(except domain.UserID) []MemberSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MemberSnapshot, 0, len(s.byID))
	for id, ms := range s.byID {
		if id == except {
			continue
		}
		out = append(out, MemberSnapshot{ID: id, Position: ms.Position()})
	}
	return out
}

func (s *spaceImpl) Broadcast(from domain.UserID, data Frame) PublishResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := PublishResult{}
	for id, m := range s.byID {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.space").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
