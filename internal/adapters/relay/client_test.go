package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// relayStub is a websocket server that answers each request frame with
// the payload returned by handle; a nil payload with err answers an
// error frame, and a nil handle swallows the request.
func relayStub(t *testing.T, handle func(f frame) (any, error)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Errorf("bad request frame: %v", err)
				return
			}
			if handle == nil {
				continue
			}
			payload, herr := handle(f)
			reply := frame{ID: f.ID, Type: f.Type}
			if herr != nil {
				reply.Error = herr.Error()
			} else {
				b, _ := json.Marshal(payload)
				reply.Payload = b
			}
			out, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
}

func dialStub(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, timeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRouterCapabilitiesRoundTrip(t *testing.T) {
	srv := relayStub(t, func(f frame) (any, error) {
		if f.Type != opRouterCapabilities {
			t.Errorf("op = %s", f.Type)
		}
		return map[string]any{"codecs": []string{"opus"}}, nil
	})
	defer srv.Close()

	c := dialStub(t, srv, time.Second)
	caps, err := c.RouterCapabilities(context.Background())
	if err != nil {
		t.Fatalf("router capabilities: %v", err)
	}
	if !strings.Contains(string(caps), "opus") {
		t.Fatalf("caps = %s", caps)
	}
}

func TestAllocateTransportsExtractsIDs(t *testing.T) {
	srv := relayStub(t, func(f frame) (any, error) {
		var req struct {
			RoomID string `json:"roomId"`
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			t.Errorf("request payload: %v", err)
		}
		if req.RoomID != "room-1" || req.UserID != "alice" {
			t.Errorf("request = %+v", req)
		}
		return map[string]any{
			"producerTransportParams": map[string]any{"id": "send-1", "iceParameters": map[string]any{}},
			"consumerTransportParams": map[string]any{"id": "recv-1", "iceParameters": map[string]any{}},
		}, nil
	})
	defer srv.Close()

	c := dialStub(t, srv, time.Second)
	pair, err := c.AllocateTransports(context.Background(), "room-1", "alice")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if pair.ProducerID != "send-1" || pair.ConsumerID != "recv-1" {
		t.Fatalf("pair ids = %s/%s", pair.ProducerID, pair.ConsumerID)
	}
	if len(pair.ProducerParams) == 0 || len(pair.ConsumerParams) == 0 {
		t.Fatal("raw transport params not preserved")
	}
}

func TestRelayErrorSurfaces(t *testing.T) {
	srv := relayStub(t, func(f frame) (any, error) {
		return nil, errors.New("no such room")
	})
	defer srv.Close()

	c := dialStub(t, srv, time.Second)
	err := c.ConnectTransport(context.Background(), "room-1", "alice", "send-1", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "no such room") {
		t.Fatalf("err = %v", err)
	}
}

func TestCallTimeout(t *testing.T) {
	srv := relayStub(t, nil) // never answers
	defer srv.Close()

	c := dialStub(t, srv, 50*time.Millisecond)
	_, err := c.RouterCapabilities(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestContextCancelAbortsCall(t *testing.T) {
	srv := relayStub(t, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := dialStub(t, srv, time.Minute)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.RouterCapabilities(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCloseDrainsPending(t *testing.T) {
	srv := relayStub(t, nil)
	defer srv.Close()

	c := dialStub(t, srv, time.Minute)
	done := make(chan error, 1)
	go func() {
		_, err := c.RouterCapabilities(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending call not drained on close")
	}
}

func TestProduceReturnsProducerID(t *testing.T) {
	srv := relayStub(t, func(f frame) (any, error) {
		if f.Type != opProduce {
			t.Errorf("op = %s", f.Type)
		}
		return map[string]any{"producerId": "producer-7"}, nil
	})
	defer srv.Close()

	c := dialStub(t, srv, time.Second)
	id, err := c.Produce(context.Background(), "room-1", "alice", "send-1", "audio", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if id != "producer-7" {
		t.Fatalf("producer id = %s", id)
	}
}

func TestConsumeDecodesConsumer(t *testing.T) {
	srv := relayStub(t, func(f frame) (any, error) {
		return map[string]any{
			"consumerId":    "consumer-3",
			"producerId":    "producer-7",
			"kind":          "audio",
			"rtpParameters": map[string]any{},
		}, nil
	})
	defer srv.Close()

	c := dialStub(t, srv, time.Second)
	info, err := c.Consume(context.Background(), "room-1", "alice", "recv-1", "producer-7", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if info.ConsumerID != "consumer-3" || info.ProducerID != "producer-7" || info.Kind != "audio" {
		t.Fatalf("info = %+v", info)
	}
}
