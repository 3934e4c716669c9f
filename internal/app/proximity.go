package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
)

// Delta is one session's proximity transition to deliver: its full nearby
// set plus the ids added and removed since the last evaluation. Deltas are
// per-observer; a movement produces one delta for every affected peer and
// at most one for the mover itself (always last in the slice).
type Delta struct {
	Session core.MemberSession
	Nearby  []domain.UserID
	Added   []domain.UserID
	Removed []domain.UserID
}

type proximityState struct {
	nearby  map[domain.UserID]struct{}
	lastPos domain.Point
}

// Proximity maintains each tracked session's last known position and
// currently-nearby set, and computes enter/exit transitions on movement.
// Evaluation is a linear scan over the room and the configured partitions;
// no spatial index is kept.
type Proximity struct {
	mu         sync.Mutex
	partitions []domain.Partition
	threshold  float64
	states     map[domain.UserID]*proximityState
}

func NewProximity(partitions []domain.Partition, threshold float64) *Proximity {
	return &Proximity{
		partitions: partitions,
		threshold:  threshold,
		states:     make(map[domain.UserID]*proximityState),
	}
}

func (p *Proximity) Threshold() float64 { return p.threshold }

// PartitionAt resolves the partition containing a point, or "" when the
// point lies outside every configured zone.
func (p *Proximity) PartitionAt(pos domain.Point) string {
	for _, pt := range p.partitions {
		if pt.Contains(pos) {
			return pt.Name
		}
	}
	return ""
}

// Track creates the proximity cache for a session joining a space.
func (p *Proximity) Track(id domain.UserID, pos domain.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[id] = &proximityState{
		nearby:  make(map[domain.UserID]struct{}),
		lastPos: pos,
	}
}

// Forget drops a departing session's cache and strips its id from every
// observer that held it, returning one delta per affected observer.
func (p *Proximity) Forget(id domain.UserID, space core.SpaceService) []Delta {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deltas []Delta
	for _, other := range space.Members() {
		if other.ID() == id {
			continue
		}
		st, ok := p.states[other.ID()]
		if !ok {
			continue
		}
		if _, near := st.nearby[id]; near {
			delete(st.nearby, id)
			deltas = append(deltas, Delta{
				Session: other,
				Nearby:  keys(st.nearby),
				Removed: []domain.UserID{id},
			})
		}
	}
	delete(p.states, id)
	return deltas
}

// Nearby returns a copy of a session's current nearby set.
func (p *Proximity) Nearby(id domain.UserID) map[domain.UserID]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[domain.UserID]struct{})
	if st, ok := p.states[id]; ok {
		for k := range st.nearby {
			out[k] = struct{}{}
		}
	}
	return out
}

// Update re-evaluates proximity for one session against the whole space.
// Run on every join and every move. Outside every partition the evaluation
// is a no-op: proximity is undefined there.
func (p *Proximity) Update(user core.MemberSession, space core.SpaceService) []Delta {
	p.mu.Lock()
	defer p.mu.Unlock()

	userPartition := p.PartitionAt(user.Position())
	if userPartition == "" {
		return nil
	}
	st, ok := p.states[user.ID()]
	if !ok {
		return nil
	}

	var deltas []Delta
	nearbyNow := make(map[domain.UserID]struct{})

	for _, other := range space.Members() {
		if other.ID() == user.ID() {
			continue
		}
		if p.PartitionAt(other.Position()) != userPartition {
			continue
		}
		isNear := domain.Distance(user.Position(), other.Position()) <= p.threshold
		if isNear {
			nearbyNow[other.ID()] = struct{}{}
		}

		// Symmetric transition for the observer, against its own cache.
		otherSt, ok := p.states[other.ID()]
		if !ok {
			continue
		}
		_, otherWasNear := otherSt.nearby[user.ID()]
		switch {
		case isNear && !otherWasNear:
			otherSt.nearby[user.ID()] = struct{}{}
			deltas = append(deltas, Delta{
				Session: other,
				Nearby:  keys(otherSt.nearby),
				Added:   []domain.UserID{user.ID()},
			})
		case !isNear && otherWasNear:
			delete(otherSt.nearby, user.ID())
			deltas = append(deltas, Delta{
				Session: other,
				Nearby:  keys(otherSt.nearby),
				Removed: []domain.UserID{user.ID()},
			})
		}
	}

	var added, removed []domain.UserID
	for id := range nearbyNow {
		if _, was := st.nearby[id]; !was {
			added = append(added, id)
		}
	}
	for id := range st.nearby {
		if _, still := nearbyNow[id]; !still {
			removed = append(removed, id)
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		st.nearby = nearbyNow
		st.lastPos = user.Position()
		deltas = append(deltas, Delta{
			Session: user,
			Nearby:  keys(nearbyNow),
			Added:   added,
			Removed: removed,
		})
		log.Debug().Str("module", "app.proximity").Str("user", string(user.ID())).
			Int("added", len(added)).Int("removed", len(removed)).Msg("proximity transition")
	}
	return deltas
}

func keys(m map[domain.UserID]struct{}) []domain.UserID {
	out := make([]domain.UserID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
