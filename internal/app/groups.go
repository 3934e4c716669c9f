package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
	"github.com/prajyot7070/MetaSpace/internal/metrics"
	"github.com/prajyot7070/MetaSpace/internal/protocol"
)

// Groups owns the in-memory mirror of proximity-group membership. The
// Group Store stays authoritative across processes; the maps here are a
// cache and must only be mutated through these methods. All formation and
// departure runs under one mutex, so within a process group creation is
// conditional: a second formation attempt for an already-grouped pair is
// a no-op.
type Groups struct {
	mu     sync.Mutex
	store  core.GroupStore
	sender Sender
	groups map[domain.GroupID]*domain.Group
	byUser map[domain.UserID]domain.GroupID
}

func NewGroups(store core.GroupStore, sender Sender) *Groups {
	return &Groups{
		store:  store,
		sender: sender,
		groups: make(map[domain.GroupID]*domain.Group),
		byUser: make(map[domain.UserID]domain.GroupID),
	}
}

// FormOrJoin handles one newly-proximate pair. The anchor is always the
// smaller session id, regardless of which side's movement detected the
// pair, so concurrent detection from both sides converges on one group.
func (g *Groups) FormOrJoin(ctx context.Context, anchor, other domain.UserID) {
	if other < anchor {
		anchor, other = other, anchor
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	anchorGID, anchorGrouped := g.byUser[anchor]
	otherGID, otherGrouped := g.byUser[other]
	if anchorGrouped && otherGrouped {
		// Already converged (possibly in the same group); nothing to form.
		return
	}

	if anchorGrouped {
		g.addMember(ctx, g.groups[anchorGID], other)
		return
	}
	if otherGrouped {
		g.addMember(ctx, g.groups[otherGID], anchor)
		return
	}

	group := domain.NewGroup(anchor, other)
	g.groups[group.ID] = group
	g.byUser[anchor] = group.ID
	g.byUser[other] = group.ID
	if err := g.store.Store(ctx, group.Token, group.MemberIDs()); err != nil {
		log.Error().Err(err).Str("module", "app.groups").Str("group", string(group.ID)).Msg("store group token")
	}
	metrics.GroupsActive.Inc()
	log.Info().Str("module", "app.groups").Str("group", string(group.ID)).
		Str("anchor", string(anchor)).Str("other", string(other)).Msg("group created")
	g.notify(group, domain.GroupAdded)
}

func (g *Groups) addMember(ctx context.Context, group *domain.Group, id domain.UserID) {
	if group == nil || group.Has(id) {
		return
	}
	group.Members[id] = struct{}{}
	g.byUser[id] = group.ID
	if err := g.store.AddMembers(ctx, group.Token, id); err != nil {
		log.Error().Err(err).Str("module", "app.groups").Str("group", string(group.ID)).Msg("store add member")
	}
	log.Info().Str("module", "app.groups").Str("group", string(group.ID)).Str("user", string(id)).Msg("member joined group")
	g.notify(group, domain.GroupAdded)
}

// Leave removes a user from its group, if any. A group left with fewer
// than two members is dissolved and its token deleted from the store.
func (g *Groups) Leave(ctx context.Context, id domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(ctx, id)
}

func (g *Groups) leaveLocked(ctx context.Context, id domain.UserID) {
	gid, ok := g.byUser[id]
	if !ok {
		return
	}
	group := g.groups[gid]
	delete(group.Members, id)
	delete(g.byUser, id)
	if err := g.store.RemoveMembers(ctx, group.Token, id); err != nil {
		log.Error().Err(err).Str("module", "app.groups").Str("group", string(gid)).Msg("store remove member")
	}
	log.Info().Str("module", "app.groups").Str("group", string(gid)).Str("user", string(id)).Msg("member left group")
	g.notify(group, domain.GroupRemoved)

	if len(group.Members) < 2 {
		remaining := group.MemberIDs()
		for _, rid := range remaining {
			delete(g.byUser, rid)
		}
		group.Members = map[domain.UserID]struct{}{}
		delete(g.groups, gid)
		if err := g.store.Delete(ctx, group.Token); err != nil {
			log.Error().Err(err).Str("module", "app.groups").Str("group", string(gid)).Msg("store delete group")
		}
		metrics.GroupsActive.Dec()
		log.Info().Str("module", "app.groups").Str("group", string(gid)).Msg("group dissolved")
		for _, rid := range remaining {
			g.sender.Send(rid, protocol.GroupUpdate(group, domain.GroupDissolved))
		}
	}
}

// DepartureCheck applies the chosen departure rule after an exit
// transition: a member leaves its group only once it is no longer
// proximate to any remaining group member.
func (g *Groups) DepartureCheck(ctx context.Context, id domain.UserID, nearby map[domain.UserID]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gid, ok := g.byUser[id]
	if !ok {
		return
	}
	group := g.groups[gid]
	for member := range group.Members {
		if member == id {
			continue
		}
		if _, near := nearby[member]; near {
			return
		}
	}
	g.leaveLocked(ctx, id)
}

// GroupOf is the O(1) reverse-index lookup.
func (g *Groups) GroupOf(id domain.UserID) (*domain.Group, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gid, ok := g.byUser[id]
	if !ok {
		return nil, false
	}
	return g.groups[gid], true
}

type GroupInfo struct {
	ID      domain.GroupID  `json:"id"`
	Members []domain.UserID `json:"members"`
}

func (g *Groups) List() []GroupInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GroupInfo, 0, len(g.groups))
	for id, group := range g.groups {
		out = append(out, GroupInfo{ID: id, Members: group.MemberIDs()})
	}
	return out
}

func (g *Groups) notify(group *domain.Group, action domain.GroupAction) {
	msg := protocol.GroupUpdate(group, action)
	for member := range group.Members {
		g.sender.Send(member, msg)
	}
}
