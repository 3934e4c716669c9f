package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prajyot7070/MetaSpace/internal/adapters/store"
	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
	"github.com/prajyot7070/MetaSpace/internal/protocol"
)

// fakeRelay records every RPC and can be told to fail a named operation.
type fakeRelay struct {
	mu        sync.Mutex
	failOp    string
	calls     []string
	allocated int
	released  []string
}

func (f *fakeRelay) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.failOp == op {
		return errors.New("relay: " + op + " failed")
	}
	return nil
}

func (f *fakeRelay) RouterCapabilities(ctx context.Context) (json.RawMessage, error) {
	if err := f.record("getRouterRtpCapabilities"); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"codecs":[]}`), nil
}

func (f *fakeRelay) AllocateTransports(ctx context.Context, room string, user domain.UserID) (*core.TransportPair, error) {
	if err := f.record("createTransport"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.allocated++
	n := f.allocated
	f.mu.Unlock()
	return &core.TransportPair{
		ProducerID:     fmt.Sprintf("send-%d", n),
		ConsumerID:     fmt.Sprintf("recv-%d", n),
		ProducerParams: json.RawMessage(`{"id":"send"}`),
		ConsumerParams: json.RawMessage(`{"id":"recv"}`),
	}, nil
}

func (f *fakeRelay) ConnectTransport(ctx context.Context, room string, user domain.UserID, transportID string, dtls json.RawMessage) error {
	return f.record("connectTransport")
}

func (f *fakeRelay) Produce(ctx context.Context, room string, user domain.UserID, transportID, kind string, rtp json.RawMessage) (string, error) {
	if err := f.record("produce"); err != nil {
		return "", err
	}
	return "producer-1", nil
}

func (f *fakeRelay) Consume(ctx context.Context, room string, user domain.UserID, transportID, producerID string, caps json.RawMessage) (*core.ConsumerInfo, error) {
	if err := f.record("consume"); err != nil {
		return nil, err
	}
	return &core.ConsumerInfo{
		ConsumerID:    "consumer-1",
		ProducerID:    producerID,
		Kind:          "audio",
		RTPParameters: json.RawMessage(`{}`),
	}, nil
}

func (f *fakeRelay) ReleaseUser(ctx context.Context, room string, user domain.UserID) error {
	if err := f.record("removeUser"); err != nil {
		return err
	}
	f.mu.Lock()
	f.released = append(f.released, room+"/"+string(user))
	f.mu.Unlock()
	return nil
}

func newTestCalls(t *testing.T) (*Calls, *fakeRelay, *recordingSender, string) {
	t.Helper()
	relay := &fakeRelay{}
	sender := &recordingSender{}
	st := store.NewMemory(24 * time.Hour)
	token := "room-token"
	if err := st.Store(context.Background(), token, []domain.UserID{"alice", "bob"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return NewCalls(relay, st, sender), relay, sender, token
}

func TestCallAllocatesAndRingsPeers(t *testing.T) {
	c, _, sender, token := newTestCalls(t)
	ctx := context.Background()

	out := c.Call(ctx, "alice", token)
	if out.Type != protocol.TypeCallResponse {
		t.Fatalf("caller reply type = %s", out.Type)
	}
	if got := c.State(token, "alice"); got != callTransportsAllocated {
		t.Fatalf("state = %s, want %s", got, callTransportsAllocated)
	}

	rings := sender.byType(protocol.TypeIncomingCall)
	if len(rings) != 1 || rings[0].To != "bob" {
		t.Fatalf("expected incoming-call to bob only, got %v", rings)
	}
}

func TestCallWithInvalidTokenIsRejected(t *testing.T) {
	c, relay, _, _ := newTestCalls(t)

	out := c.Call(context.Background(), "alice", "no-such-token")
	if out.Type != protocol.TypeCallError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeCallError)
	}
	if len(relay.calls) != 0 {
		t.Fatalf("relay reached despite invalid token: %v", relay.calls)
	}
}

func TestCallFromNonMemberIsRejected(t *testing.T) {
	c, _, _, token := newTestCalls(t)

	out := c.Call(context.Background(), "mallory", token)
	if out.Type != protocol.TypeCallError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeCallError)
	}
}

func TestAcceptNotifiesPeers(t *testing.T) {
	c, _, sender, token := newTestCalls(t)
	ctx := context.Background()

	c.Call(ctx, "alice", token)
	out := c.Accept(ctx, "bob", token)
	if out.Type != protocol.TypeCallAccepted {
		t.Fatalf("accept reply type = %s", out.Type)
	}

	joins := sender.byType(protocol.TypeUserJoinedCall)
	if len(joins) != 1 || joins[0].To != "alice" {
		t.Fatalf("expected user-joined-call to alice, got %v", joins)
	}
}

func TestDoubleCallIsRejected(t *testing.T) {
	c, _, _, token := newTestCalls(t)
	ctx := context.Background()

	c.Call(ctx, "alice", token)
	out := c.Call(ctx, "alice", token)
	if out.Type != protocol.TypeCallError {
		t.Fatalf("second call reply = %s, want %s", out.Type, protocol.TypeCallError)
	}
}

func callToConnected(t *testing.T, c *Calls, ctx context.Context, user domain.UserID, token string) *core.TransportPair {
	t.Helper()
	c.Call(ctx, user, token)
	c.mu.Lock()
	pair := c.sessions[callKey{room: token, user: user}].pair
	c.mu.Unlock()

	dtls := json.RawMessage(`{"fingerprints":[]}`)
	for _, id := range []string{pair.ProducerID, pair.ConsumerID} {
		out := c.ConnectTransport(ctx, user, &protocol.ConnectTransport{
			RoomID: token, TransportID: id, DTLSParameters: dtls,
		})
		if out.Type != protocol.TypeTransportConnected {
			t.Fatalf("connect %s reply = %s", id, out.Type)
		}
	}
	return pair
}

func TestConnectBothTransportsReachesConnected(t *testing.T) {
	c, _, _, token := newTestCalls(t)
	ctx := context.Background()

	callToConnected(t, c, ctx, "alice", token)
	if got := c.State(token, "alice"); got != callConnected {
		t.Fatalf("state = %s, want %s", got, callConnected)
	}
}

func TestConnectUnknownTransport(t *testing.T) {
	c, _, _, token := newTestCalls(t)
	ctx := context.Background()

	c.Call(ctx, "alice", token)
	out := c.ConnectTransport(ctx, "alice", &protocol.ConnectTransport{
		RoomID: token, TransportID: "bogus", DTLSParameters: json.RawMessage(`{}`),
	})
	if out.Type != protocol.TypeTransportError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeTransportError)
	}
}

func TestConnectBeforeCallIsRejected(t *testing.T) {
	c, _, _, token := newTestCalls(t)

	out := c.ConnectTransport(context.Background(), "alice", &protocol.ConnectTransport{
		RoomID: token, TransportID: "send-1", DTLSParameters: json.RawMessage(`{}`),
	})
	if out.Type != protocol.TypeTransportError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeTransportError)
	}
}

func TestProduceBeforeConnectedIsRejected(t *testing.T) {
	c, _, _, token := newTestCalls(t)
	ctx := context.Background()

	c.Call(ctx, "alice", token)
	c.mu.Lock()
	sendID := c.sessions[callKey{room: token, user: "alice"}].pair.ProducerID
	c.mu.Unlock()

	out := c.Produce(ctx, "alice", &protocol.Produce{
		RoomID: token, TransportID: sendID, Kind: "audio", RTPParameters: json.RawMessage(`{}`),
	})
	if out.Type != protocol.TypeProduceError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeProduceError)
	}
}

func TestProduceAnnouncesToPeers(t *testing.T) {
	c, _, sender, token := newTestCalls(t)
	ctx := context.Background()

	pair := callToConnected(t, c, ctx, "alice", token)
	out := c.Produce(ctx, "alice", &protocol.Produce{
		RoomID: token, TransportID: pair.ProducerID, Kind: "audio", RTPParameters: json.RawMessage(`{}`),
	})
	if out.Type != protocol.TypeProducerCreated {
		t.Fatalf("reply type = %s", out.Type)
	}
	if got := c.State(token, "alice"); got != callProducing {
		t.Fatalf("state = %s, want %s", got, callProducing)
	}

	announced := sender.byType(protocol.TypeNewProducer)
	if len(announced) != 1 || announced[0].To != "bob" {
		t.Fatalf("expected new-producer to bob only, got %v", announced)
	}
}

func TestProduceThenConsumeReachesActive(t *testing.T) {
	c, _, _, token := newTestCalls(t)
	ctx := context.Background()

	pair := callToConnected(t, c, ctx, "alice", token)
	c.Produce(ctx, "alice", &protocol.Produce{
		RoomID: token, TransportID: pair.ProducerID, Kind: "audio", RTPParameters: json.RawMessage(`{}`),
	})
	out := c.Consume(ctx, "alice", &protocol.Consume{
		RoomID: token, TransportID: pair.ConsumerID, ProducerID: "peer-producer",
		RTPCapabilities: json.RawMessage(`{}`),
	})
	if out.Type != protocol.TypeConsumerCreated {
		t.Fatalf("reply type = %s", out.Type)
	}
	if got := c.State(token, "alice"); got != callActive {
		t.Fatalf("state = %s, want %s", got, callActive)
	}
}

func TestRelayFailureMarksFailedAndAllowsRetry(t *testing.T) {
	c, relay, _, token := newTestCalls(t)
	ctx := context.Background()

	relay.failOp = "createTransport"
	out := c.Call(ctx, "alice", token)
	if out.Type != protocol.TypeCallError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeCallError)
	}
	if got := c.State(token, "alice"); got != callFailed {
		t.Fatalf("state = %s, want %s", got, callFailed)
	}

	// A failed session may be re-dialed.
	relay.failOp = ""
	out = c.Call(ctx, "alice", token)
	if out.Type != protocol.TypeCallResponse {
		t.Fatalf("retry reply type = %s", out.Type)
	}
}

func TestConnectFailureMarksFailed(t *testing.T) {
	c, relay, _, token := newTestCalls(t)
	ctx := context.Background()

	c.Call(ctx, "alice", token)
	c.mu.Lock()
	sendID := c.sessions[callKey{room: token, user: "alice"}].pair.ProducerID
	c.mu.Unlock()

	relay.failOp = "connectTransport"
	out := c.ConnectTransport(ctx, "alice", &protocol.ConnectTransport{
		RoomID: token, TransportID: sendID, DTLSParameters: json.RawMessage(`{}`),
	})
	if out.Type != protocol.TypeTransportError {
		t.Fatalf("reply type = %s, want %s", out.Type, protocol.TypeTransportError)
	}
	if got := c.State(token, "alice"); got != callFailed {
		t.Fatalf("state = %s, want %s", got, callFailed)
	}
}

func TestRejectForwardsToCaller(t *testing.T) {
	c, _, sender, _ := newTestCalls(t)

	c.Reject("bob", "alice")
	rejected := sender.byType(protocol.TypeCallRejected)
	if len(rejected) != 1 || rejected[0].To != "alice" {
		t.Fatalf("call-rejected not delivered to caller: %v", rejected)
	}
}

func TestReleaseAllTearsDownEveryRoom(t *testing.T) {
	c, relay, _, token := newTestCalls(t)
	ctx := context.Background()

	c.Call(ctx, "alice", token)
	c.ReleaseAll(ctx, "alice")

	if len(relay.released) != 1 || relay.released[0] != token+"/alice" {
		t.Fatalf("relay release mismatch: %v", relay.released)
	}
	if got := c.State(token, "alice"); got != callIdle {
		t.Fatalf("state after release = %s, want %s", got, callIdle)
	}
}
