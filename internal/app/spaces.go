package app

import (
	"sync"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
)

// SpaceManager creates spaces lazily on first join. Spaces are never
// explicitly destroyed; an empty space is just an empty member set.
type SpaceManager struct {
	mu     sync.RWMutex
	spaces map[domain.SpaceID]core.SpaceService
}

func NewSpaceManager() core.SpaceFactory {
	return &SpaceManager{spaces: make(map[domain.SpaceID]core.SpaceService)}
}

func (f *SpaceManager) GetOrCreate(id domain.SpaceID) core.SpaceService {
	f.mu.RLock()
	space, ok := f.spaces[id]
	f.mu.RUnlock()
	if ok {
		return space
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if space, ok = f.spaces[id]; ok {
		return space
	}
	space = core.NewSpaceService(&domain.Space{ID: id})
	f.spaces[id] = space
	return space
}

func (f *SpaceManager) Get(id domain.SpaceID) (core.SpaceService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	space, ok := f.spaces[id]
	return space, ok
}

func (f *SpaceManager) List() []core.SpaceInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.SpaceInfo, 0, len(f.spaces))
	for id, s := range f.spaces {
		out = append(out, core.SpaceInfo{ID: id, MemberCount: s.MemberCount()})
	}
	return out
}
