package app

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
	"github.com/prajyot7070/MetaSpace/internal/protocol"
)

type sessionEntry struct {
	SpaceID domain.SpaceID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks every live connection in this process and resolves a
// user id to its session for directed delivery.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.UserID]*sessionEntry)}
}

func (r *Registry) Bind(id domain.UserID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("bound session")
}

func (r *Registry) Unbind(id domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("unbind session")
}

func (r *Registry) Get(id domain.UserID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) SpaceOf(id domain.UserID) (domain.SpaceID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.SpaceID == "" {
		return "", false
	}
	return e.SpaceID, true
}

func (r *Registry) UpdateSpace(id domain.UserID, space domain.SpaceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.SpaceID = space
	log.Info().Str("module", "app.registry").Str("user", string(id)).Str("space", string(space)).Msg("updated space")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(id domain.UserID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}

// Send marshals and delivers one message to a connected user. Unknown or
// disconnected recipients are dropped silently; delivery is best effort.
func (r *Registry) Send(id domain.UserID, msg protocol.Out) bool {
	sess, ok := r.Get(id)
	if !ok {
		return false
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("type", msg.Type).Msg("marshal outbound")
		return false
	}
	if err := sess.Signal().TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("user", string(id)).Str("type", msg.Type).Msg("send dropped")
		return false
	}
	return true
}

// Sender is the directed-delivery surface used by the group coordinator
// and the call bridge.
type Sender interface {
	Send(id domain.UserID, msg protocol.Out) bool
}
