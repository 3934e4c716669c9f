package domain

import (
	"time"

	"github.com/google/uuid"
)

type GroupID string

// GroupAction tags a proximity-group-update broadcast.
type GroupAction string

const (
	GroupAdded     GroupAction = "added"
	GroupRemoved   GroupAction = "removed"
	GroupDissolved GroupAction = "dissolved"
)

// Group is a dynamic set of spatially-close sessions sharing one
// call-authorization token. A group exists only while it has at least
// two members; the anchor is the tie-break origin, not a privileged role.
type Group struct {
	ID         GroupID
	Anchor     UserID
	Token      string
	Members    map[UserID]struct{}
	LastActive time.Time
}

func NewGroup(anchor, other UserID) *Group {
	return &Group{
		ID:         GroupID(uuid.NewString()),
		Anchor:     anchor,
		Token:      uuid.NewString(),
		Members:    map[UserID]struct{}{anchor: {}, other: {}},
		LastActive: time.Now(),
	}
}

func (g *Group) Has(id UserID) bool {
	_, ok := g.Members[id]
	return ok
}

// MemberIDs returns a copy of the member set as a slice.
func (g *Group) MemberIDs() []UserID {
	out := make([]UserID, 0, len(g.Members))
	for id := range g.Members {
		out = append(out, id)
	}
	return out
}
