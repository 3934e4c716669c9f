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

// callState is the per-(room,user) call-setup progress. Every relay RPC
// step can move the session to callFailed; there is no rollback of
// resources created before the failing step.
type callState int

const (
	callIdle callState = iota
	callTransportsAllocated
	callConnecting
	callConnected
	callProducing
	callConsuming
	callActive
	callFailed
)

func (s callState) String() string {
	switch s {
	case callIdle:
		return "idle"
	case callTransportsAllocated:
		return "transports-allocated"
	case callConnecting:
		return "connecting"
	case callConnected:
		return "connected"
	case callProducing:
		return "producing"
	case callConsuming:
		return "consuming"
	case callActive:
		return "active"
	case callFailed:
		return "failed"
	}
	return "unknown"
}

// transitions lists, per inbound message type, the states a call session
// may be in for the message to be accepted. Anything else is rejected
// with a typed error instead of silently proceeding.
var transitions = map[string]map[callState]bool{
	protocol.TypeCall:       {callIdle: true, callFailed: true},
	protocol.TypeCallAccept: {callIdle: true, callFailed: true},
	protocol.TypeConnectTransport: {
		callTransportsAllocated: true,
		callConnecting:          true,
	},
	protocol.TypeProduce: {
		callConnected: true,
		callProducing: true,
		callConsuming: true,
		callActive:    true,
	},
	protocol.TypeConsume: {
		callConnected: true,
		callProducing: true,
		callConsuming: true,
		callActive:    true,
	},
}

type callKey struct {
	room string
	user domain.UserID
}

type callSession struct {
	state     callState
	pair      *core.TransportPair
	connected map[string]bool // transportID -> DTLS handshake done
}

// Calls bridges client call-signaling messages to the media relay and
// fans resulting events out to the other group members. Group membership
// is always validated against the Group Store, not the in-memory mirror.
type Calls struct {
	mu       sync.Mutex
	relay    core.RelayService
	store    core.GroupStore
	sender   Sender
	sessions map[callKey]*callSession
	rooms    map[domain.UserID]map[string]struct{}
}

func NewCalls(relay core.RelayService, store core.GroupStore, sender Sender) *Calls {
	return &Calls{
		relay:    relay,
		store:    store,
		sender:   sender,
		sessions: make(map[callKey]*callSession),
		rooms:    make(map[domain.UserID]map[string]struct{}),
	}
}

// RouterCapabilities fetches the relay's codec capabilities.
func (c *Calls) RouterCapabilities(ctx context.Context) protocol.Out {
	caps, err := c.relay.RouterCapabilities(ctx)
	if err != nil {
		metrics.RelayErrors.Inc()
		log.Error().Err(err).Str("module", "app.calls").Msg("router capabilities")
		return protocol.CallError("failed to fetch router capabilities")
	}
	return protocol.RTPCapabilities(caps)
}

// Call starts call setup for the token's group: allocates the sender's
// transport pair and rings the other members.
func (c *Calls) Call(ctx context.Context, user domain.UserID, token string) protocol.Out {
	return c.setup(ctx, user, token, protocol.TypeCall)
}

// Accept allocates the accepting side's transport pair and tells the
// peers the user joined the call.
func (c *Calls) Accept(ctx context.Context, user domain.UserID, token string) protocol.Out {
	return c.setup(ctx, user, token, protocol.TypeCallAccept)
}

func (c *Calls) setup(ctx context.Context, user domain.UserID, token, msgType string) protocol.Out {
	members, err := c.store.Members(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("module", "app.calls").Str("user", string(user)).Msg("group store lookup")
		return protocol.CallError("failed to validate call token")
	}
	if !containsUser(members, user) {
		return protocol.CallError("invalid call token")
	}

	key := callKey{room: token, user: user}
	c.mu.Lock()
	cs := c.session(key)
	if !transitions[msgType][cs.state] {
		state := cs.state
		c.mu.Unlock()
		return protocol.CallError("call already in progress (state " + state.String() + ")")
	}
	c.mu.Unlock()

	pair, err := c.relay.AllocateTransports(ctx, token, user)
	if err != nil {
		metrics.RelayErrors.Inc()
		c.fail(key)
		log.Error().Err(err).Str("module", "app.calls").Str("user", string(user)).Msg("allocate transports")
		return protocol.CallError("failed to allocate transports")
	}

	c.mu.Lock()
	cs = c.session(key)
	cs.state = callTransportsAllocated
	cs.pair = pair
	cs.connected = make(map[string]bool)
	if c.rooms[user] == nil {
		c.rooms[user] = make(map[string]struct{})
	}
	c.rooms[user][token] = struct{}{}
	c.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("user", string(user)).Str("room", token).
		Str("state", callTransportsAllocated.String()).Msg("transports allocated")

	if msgType == protocol.TypeCall {
		c.fanout(members, user, protocol.IncomingCall(token, user))
		return protocol.CallResponse(pair.ProducerParams, pair.ConsumerParams, token, user)
	}
	c.fanout(members, user, protocol.UserJoinedCall(user))
	return protocol.CallAccepted(pair.ProducerParams, pair.ConsumerParams, token, user)
}

// Reject forwards a decline straight to the named caller; no call state
// is created or touched.
func (c *Calls) Reject(user, caller domain.UserID) {
	c.sender.Send(caller, protocol.CallRejected(user))
}

// ConnectTransport completes the DTLS handshake for one of the sender's
// two transports. Both connected moves the session to callConnected.
func (c *Calls) ConnectTransport(ctx context.Context, user domain.UserID, p *protocol.ConnectTransport) protocol.Out {
	key := callKey{room: p.RoomID, user: user}
	c.mu.Lock()
	cs, ok := c.sessions[key]
	if !ok || !transitions[protocol.TypeConnectTransport][cs.state] {
		c.mu.Unlock()
		return protocol.TransportError("no transport awaiting connect in this room")
	}
	if p.TransportID != cs.pair.ProducerID && p.TransportID != cs.pair.ConsumerID {
		c.mu.Unlock()
		return protocol.TransportError("unknown transport " + p.TransportID)
	}
	c.mu.Unlock()

	if err := c.relay.ConnectTransport(ctx, p.RoomID, user, p.TransportID, p.DTLSParameters); err != nil {
		metrics.RelayErrors.Inc()
		c.fail(key)
		log.Error().Err(err).Str("module", "app.calls").Str("transport", p.TransportID).Msg("connect transport")
		return protocol.TransportError("failed to connect transport")
	}

	c.mu.Lock()
	if cs, ok = c.sessions[key]; ok {
		cs.connected[p.TransportID] = true
		if cs.connected[cs.pair.ProducerID] && cs.connected[cs.pair.ConsumerID] {
			cs.state = callConnected
		} else {
			cs.state = callConnecting
		}
		log.Info().Str("module", "app.calls").Str("user", string(user)).Str("state", cs.state.String()).Msg("transport connected")
	}
	c.mu.Unlock()

	return protocol.TransportConnected(p.TransportID)
}

// Produce creates one outbound media track on the relay and announces the
// new producer to the other group members so each can consume it.
func (c *Calls) Produce(ctx context.Context, user domain.UserID, p *protocol.Produce) protocol.Out {
	key := callKey{room: p.RoomID, user: user}
	c.mu.Lock()
	cs, ok := c.sessions[key]
	if !ok || !transitions[protocol.TypeProduce][cs.state] {
		c.mu.Unlock()
		return protocol.ProduceError("call not ready to produce")
	}
	if p.TransportID != cs.pair.ProducerID {
		c.mu.Unlock()
		return protocol.ProduceError("unknown producer transport " + p.TransportID)
	}
	c.mu.Unlock()

	producerID, err := c.relay.Produce(ctx, p.RoomID, user, p.TransportID, p.Kind, p.RTPParameters)
	if err != nil {
		metrics.RelayErrors.Inc()
		c.fail(key)
		log.Error().Err(err).Str("module", "app.calls").Str("user", string(user)).Msg("produce")
		return protocol.ProduceError("failed to create producer")
	}

	c.mu.Lock()
	if cs, ok = c.sessions[key]; ok {
		if cs.state == callConsuming {
			cs.state = callActive
		} else if cs.state == callConnected {
			cs.state = callProducing
		}
	}
	c.mu.Unlock()

	if members, err := c.store.Members(ctx, p.RoomID); err == nil {
		c.fanout(members, user, protocol.NewProducer(p.RoomID, producerID))
	} else {
		log.Error().Err(err).Str("module", "app.calls").Str("room", p.RoomID).Msg("group store lookup for new-producer")
	}
	return protocol.ProducerCreated(p.TransportID, producerID)
}

// Consume binds one inbound track to the sender's receive transport. The
// relay rejects capability mismatches with the producer's codec.
func (c *Calls) Consume(ctx context.Context, user domain.UserID, p *protocol.Consume) protocol.Out {
	key := callKey{room: p.RoomID, user: user}
	c.mu.Lock()
	cs, ok := c.sessions[key]
	if !ok || !transitions[protocol.TypeConsume][cs.state] {
		c.mu.Unlock()
		return protocol.CallError("call not ready to consume")
	}
	transportID := cs.pair.ConsumerID
	c.mu.Unlock()

	// The receive transport is fixed per session; the client-supplied id
	// is accepted only if it matches.
	if p.TransportID != "" && p.TransportID != transportID {
		return protocol.CallError("unknown consumer transport " + p.TransportID)
	}

	info, err := c.relay.Consume(ctx, p.RoomID, user, transportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		metrics.RelayErrors.Inc()
		c.fail(key)
		log.Error().Err(err).Str("module", "app.calls").Str("user", string(user)).Str("producer", p.ProducerID).Msg("consume")
		return protocol.CallError("failed to create consumer")
	}

	c.mu.Lock()
	if cs, ok = c.sessions[key]; ok {
		if cs.state == callProducing {
			cs.state = callActive
		} else if cs.state == callConnected {
			cs.state = callConsuming
		}
	}
	c.mu.Unlock()

	return protocol.ConsumerCreated(info.ConsumerID, info.ProducerID, info.Kind, info.RTPParameters)
}

// ReleaseAll tears down every call resource a user holds across rooms.
// Run from the connection's destroy path.
func (c *Calls) ReleaseAll(ctx context.Context, user domain.UserID) {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms[user]))
	for room := range c.rooms[user] {
		rooms = append(rooms, room)
		delete(c.sessions, callKey{room: room, user: user})
	}
	delete(c.rooms, user)
	c.mu.Unlock()

	for _, room := range rooms {
		if err := c.relay.ReleaseUser(ctx, room, user); err != nil {
			metrics.RelayErrors.Inc()
			log.Error().Err(err).Str("module", "app.calls").Str("user", string(user)).Str("room", room).Msg("release user")
		}
	}
}

// State reports the call state for one (room,user), callIdle when none.
func (c *Calls) State(room string, user domain.UserID) callState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cs, ok := c.sessions[callKey{room: room, user: user}]; ok {
		return cs.state
	}
	return callIdle
}

// session returns the tracked call session, creating an idle one.
// Caller must hold c.mu.
func (c *Calls) session(key callKey) *callSession {
	cs, ok := c.sessions[key]
	if !ok {
		cs = &callSession{state: callIdle, connected: make(map[string]bool)}
		c.sessions[key] = cs
	}
	return cs
}

func (c *Calls) fail(key callKey) {
	c.mu.Lock()
	if cs, ok := c.sessions[key]; ok {
		cs.state = callFailed
	}
	c.mu.Unlock()
}

func (c *Calls) fanout(members []domain.UserID, except domain.UserID, msg protocol.Out) {
	for _, id := range members {
		if id == except {
			continue
		}
		c.sender.Send(id, msg)
	}
}

func containsUser(ids []domain.UserID, id domain.UserID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
