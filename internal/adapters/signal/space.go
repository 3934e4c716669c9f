package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/app"
	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
	"github.com/prajyot7070/MetaSpace/internal/metrics"
	"github.com/prajyot7070/MetaSpace/internal/protocol"
)

// handleJoin validates the space against the directory; an unknown space
// is fatal for the connection (closed, no error reply). On success the
// session is registered, proximity is evaluated against the existing
// occupants, and the room is told about the newcomer.
func (ctl *Controller) handleJoin(ctx context.Context, sess core.MemberSession, c core.SignalConnection, p *protocol.Join) {
	id := sess.ID()
	if _, joined := ctl.Orch.Registry.SpaceOf(id); joined {
		log.Warn().Str("module", "signal").Str("user", string(id)).Msg("join while already in a space")
		c.Close()
		return
	}

	spaceID := domain.SpaceID(p.SpaceID)
	exists, err := ctl.Orch.Directory.Exists(ctx, spaceID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("space", p.SpaceID).Msg("space lookup failed")
		c.Close()
		return
	}
	if !exists {
		log.Warn().Str("module", "signal").Str("user", string(id)).Str("space", p.SpaceID).Msg("join to unknown space")
		c.Close()
		return
	}

	sess.SetPosition(ctl.Spawn)
	ctl.Orch.Registry.UpdateSpace(id, spaceID)
	space := ctl.Orch.Spaces.GetOrCreate(spaceID)
	space.AddMember(sess)
	ctl.Orch.Proximity.Track(id, ctl.Spawn)
	log.Info().Str("module", "signal").Str("user", string(id)).Str("space", p.SpaceID).Msg("join")

	// Initial evaluation against existing occupants.
	deltas := ctl.Orch.Proximity.Update(sess, space)
	ctl.deliverDeltas(ctx, sess.ID(), deltas)

	snapshot := space.Snapshot(id)
	users := make([]protocol.UserInfo, 0, len(snapshot))
	for _, m := range snapshot {
		users = append(users, protocol.UserInfo{ID: m.ID, X: m.Position.X, Y: m.Position.Y})
	}
	ctl.sendOut(c, protocol.SpaceJoined(ctl.Spawn, users))

	ctl.broadcast(space, id, protocol.UserJoined(id, sess.Position()))
}

// handleMove accepts any coordinates: there is deliberately no step-size
// or bounds check on movement.
func (ctl *Controller) handleMove(ctx context.Context, sess core.MemberSession, c core.SignalConnection, p *protocol.Move) {
	id := sess.ID()
	spaceID, ok := ctl.Orch.Registry.SpaceOf(id)
	if !ok {
		log.Warn().Str("module", "signal").Str("user", string(id)).Msg("move before join")
		return
	}
	space, ok := ctl.Orch.Spaces.Get(spaceID)
	if !ok {
		return
	}

	pos := domain.Point{X: p.X, Y: p.Y}
	sess.SetPosition(pos)

	deltas := ctl.Orch.Proximity.Update(sess, space)
	ctl.broadcast(space, id, protocol.UserMoved(id, pos))
	ctl.deliverDeltas(ctx, id, deltas)
}

// deliverDeltas sends every proximity transition to its observer and
// drives group formation and departure. Formation is invoked only from
// the mover's own delta; the coordinator puts the smaller id in charge.
func (ctl *Controller) deliverDeltas(ctx context.Context, mover domain.UserID, deltas []app.Delta) {
	for _, d := range deltas {
		ctl.Orch.Registry.Send(d.Session.ID(), protocol.NearbyUsersUpdated(d.Nearby, d.Added, d.Removed))
	}
	for _, d := range deltas {
		if d.Session.ID() == mover {
			for _, added := range d.Added {
				ctl.Orch.Groups.FormOrJoin(ctx, mover, added)
			}
		}
		if len(d.Removed) > 0 {
			id := d.Session.ID()
			ctl.Orch.Groups.DepartureCheck(ctx, id, ctl.Orch.Proximity.Nearby(id))
		}
	}
}

// destroy is the connection's teardown hook: it releases room and
// proximity registrations, group membership and relay resources.
func (ctl *Controller) destroy(ctx context.Context, sess core.MemberSession) {
	id := sess.ID()
	if spaceID, ok := ctl.Orch.Registry.SpaceOf(id); ok {
		if space, ok := ctl.Orch.Spaces.Get(spaceID); ok {
			ctl.broadcast(space, id, protocol.UserLeft(id))
			deltas := ctl.Orch.Proximity.Forget(id, space)
			for _, d := range deltas {
				ctl.Orch.Registry.Send(d.Session.ID(), protocol.NearbyUsersUpdated(d.Nearby, d.Added, d.Removed))
				ctl.Orch.Groups.DepartureCheck(ctx, d.Session.ID(), ctl.Orch.Proximity.Nearby(d.Session.ID()))
			}
			space.RemoveMember(id)
		}
	}
	ctl.Orch.Groups.Leave(ctx, id)
	ctl.Orch.Calls.ReleaseAll(ctx, id)
	ctl.Orch.Registry.Unbind(id)
	metrics.SessionsConnected.Dec()
	log.Info().Str("module", "signal").Str("user", string(id)).Msg("session destroyed")
}
