package core

import (
	"context"
	"encoding/json"

	"github.com/prajyot7070/MetaSpace/internal/domain"
)

// Frame is a raw outbound payload, already marshaled.
type Frame []byte

// SignalConnection abstracts a client's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a connected user's identity and position to its
// transport endpoint. This is what a space stores and fans out to.
// Position is mutated only by the session's own inbound messages.
type MemberSession interface {
	ID() domain.UserID
	Position() domain.Point
	SetPosition(domain.Point)
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

// MemberSnapshot is a read-only view for replies (no transport fields).
type MemberSnapshot struct {
	ID       domain.UserID
	Position domain.Point
}

// SpaceService is the core-facing API of one logical space. It owns the
// membership set but never touches transport resources.
type SpaceService interface {
	Space() *domain.Space
	MemberCount() int
	Members() []MemberSession
	Snapshot(except domain.UserID) []MemberSnapshot

	AddMember(ms MemberSession)
	RemoveMember(id domain.UserID)
	Get(id domain.UserID) (MemberSession, bool)
	Broadcast(from domain.UserID, data Frame) PublishResult
}

type SpaceInfo struct {
	ID          domain.SpaceID `json:"id"`
	MemberCount int            `json:"member_count"`
}

type SpaceFactory interface {
	GetOrCreate(id domain.SpaceID) SpaceService
	Get(id domain.SpaceID) (SpaceService, bool)
	List() []SpaceInfo
}

// SpaceDirectory is the external persistence API consulted at join time.
type SpaceDirectory interface {
	Exists(ctx context.Context, id domain.SpaceID) (bool, error)
}

// GroupStore is the shared TTL'd token → member-set store, authoritative
// for cross-process group membership. Implementations apply the configured
// TTL on Store and refresh it on AddMembers.
type GroupStore interface {
	Store(ctx context.Context, token string, members []domain.UserID) error
	AddMembers(ctx context.Context, token string, members ...domain.UserID) error
	RemoveMembers(ctx context.Context, token string, members ...domain.UserID) error
	Members(ctx context.Context, token string) ([]domain.UserID, error)
	Delete(ctx context.Context, token string) error
}

// TransportPair carries the relay-issued parameter blobs for one user's
// send and receive transports. Params are opaque to this process; the
// transport ids are extracted for state tracking only.
type TransportPair struct {
	ProducerID     string
	ConsumerID     string
	ProducerParams json.RawMessage
	ConsumerParams json.RawMessage
}

type ConsumerInfo struct {
	ConsumerID    string
	ProducerID    string
	Kind          string
	RTPParameters json.RawMessage
}

// RelayService is the RPC contract with the external media relay (SFU).
// Every method maps to one relay call; no retries are performed here.
type RelayService interface {
	RouterCapabilities(ctx context.Context) (json.RawMessage, error)
	AllocateTransports(ctx context.Context, room string, user domain.UserID) (*TransportPair, error)
	ConnectTransport(ctx context.Context, room string, user domain.UserID, transportID string, dtls json.RawMessage) error
	Produce(ctx context.Context, room string, user domain.UserID, transportID, kind string, rtp json.RawMessage) (string, error)
	Consume(ctx context.Context, room string, user domain.UserID, transportID, producerID string, caps json.RawMessage) (*ConsumerInfo, error)
	ReleaseUser(ctx context.Context, room string, user domain.UserID) error
}
