package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/prajyot7070/MetaSpace/internal/domain"
)

func TestDecodeJoin(t *testing.T) {
	typ, msg, err := Decode([]byte(`{"type":"join","payload":{"spaceId":"lobby"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if typ != TypeJoin {
		t.Fatalf("type = %s", typ)
	}
	join, ok := msg.(*Join)
	if !ok || join.SpaceID != "lobby" {
		t.Fatalf("payload = %#v", msg)
	}
}

func TestDecodeMove(t *testing.T) {
	_, msg, err := Decode([]byte(`{"type":"move","payload":{"x":12.5,"y":-3}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	move := msg.(*Move)
	if move.X != 12.5 || move.Y != -3 {
		t.Fatalf("payload = %#v", move)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	typ, _, err := Decode([]byte(`{"type":"teleport","payload":{}}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if typ != "teleport" {
		t.Fatalf("type = %s", typ)
	}
}

func TestDecodeBadEnvelope(t *testing.T) {
	if _, _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatal("malformed envelope accepted")
	}
}

func TestDecodeValidation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"join without spaceId", `{"type":"join","payload":{}}`},
		{"call without token", `{"type":"call","payload":{}}`},
		{"call-reject without caller", `{"type":"call-reject","payload":{"token":"t"}}`},
		{"connect-transport without dtls", `{"type":"connect-transport","payload":{"roomId":"r","transportId":"t"}}`},
		{"produce with bad kind", `{"type":"produce","payload":{"roomId":"r","transportId":"t","kind":"screen","rtpParameters":{}}}`},
		{"consume without producerId", `{"type":"consume","payload":{"roomId":"r","transportId":"t","rtpCapabilities":{}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			typ, msg, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatalf("accepted invalid payload: %s -> %#v", typ, msg)
			}
			if msg != nil {
				t.Fatalf("partial message returned: %#v", msg)
			}
		})
	}
}

func TestDecodeProduceKinds(t *testing.T) {
	for _, kind := range []string{"audio", "video"} {
		raw := `{"type":"produce","payload":{"roomId":"r","transportId":"t","kind":"` + kind + `","rtpParameters":{}}}`
		_, msg, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("kind %s rejected: %v", kind, err)
		}
		if msg.(*Produce).Kind != kind {
			t.Fatalf("kind = %s", msg.(*Produce).Kind)
		}
	}
}

func TestDecodeRouterCapsNeedsNoPayload(t *testing.T) {
	typ, msg, err := Decode([]byte(`{"type":"routerRTPCapabilities"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if typ != TypeRouterRTPCaps || msg == nil {
		t.Fatalf("type = %s, msg = %#v", typ, msg)
	}
}

func TestSpaceJoinedEmptySpace(t *testing.T) {
	out := SpaceJoined(domain.Point{X: 34, Y: 29}, nil)
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Type    string `json:"type"`
		Payload struct {
			Spawn domain.Point      `json:"spawn"`
			Users []json.RawMessage `json:"users"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeSpaceJoined {
		t.Fatalf("type = %s", got.Type)
	}
	if got.Payload.Spawn.X != 34 || got.Payload.Spawn.Y != 29 {
		t.Fatalf("spawn = %+v", got.Payload.Spawn)
	}
	// An empty space serializes an empty array, never null.
	if got.Payload.Users == nil {
		t.Fatal("users is null")
	}
}

func TestNearbyUsersUpdatedNeverNull(t *testing.T) {
	raw, err := json.Marshal(NearbyUsersUpdated(nil, nil, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Payload struct {
			Nearby  []domain.UserID `json:"nearby"`
			Added   []domain.UserID `json:"added"`
			Removed []domain.UserID `json:"removed"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Payload.Nearby == nil || got.Payload.Added == nil || got.Payload.Removed == nil {
		t.Fatalf("null slice in %s", raw)
	}
}
