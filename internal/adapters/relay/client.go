// Package relay implements the RPC client for the external media relay
// (SFU). It speaks {id, type, payload} frames over one persistent
// websocket; replies are matched to requests by id.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
)

// Relay-side operation names.
const (
	opRouterCapabilities = "getRouterRtpCapabilities"
	opCreateTransport    = "createTransport"
	opConnectTransport   = "connectTransport"
	opProduce            = "produce"
	opConsume            = "consume"
	opRemoveUser         = "removeUser"
)

var (
	ErrClosed  = errors.New("relay connection closed")
	ErrTimeout = errors.New("relay call timeout")
)

type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type pending struct {
	done    chan struct{}
	err     error
	payload json.RawMessage
}

type Client struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu     sync.Mutex
	queue  map[string]*pending
	closed bool
}

// Dial connects to the relay service and starts the read loop. The
// timeout bounds each individual RPC; it is client-side only and not
// authoritative for relay state.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c := &Client{
		conn:    conn,
		timeout: timeout,
		queue:   make(map[string]*pending),
	}
	go c.readLoop()
	log.Info().Str("module", "relay").Str("url", url).Msg("connected to media relay")
	return c, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.drain(ErrClosed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "relay").Msg("read loop terminated")
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("bad relay frame")
			continue
		}
		if f.ID == "" {
			continue
		}
		if task := c.pop(f.ID); task != nil {
			if f.Error != "" {
				task.err = errors.New(f.Error)
			}
			task.payload = f.Payload
			close(task.done)
		}
	}
}

func (c *Client) pop(id string) *pending {
	c.mu.Lock()
	task := c.queue[id]
	delete(c.queue, id)
	c.mu.Unlock()
	return task
}

// drain cancels everything still waiting in the queue.
func (c *Client) drain(err error) {
	c.mu.Lock()
	for id, task := range c.queue {
		delete(c.queue, id)
		if task.err == nil {
			task.err = err
		}
		close(task.done)
	}
	c.closed = true
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", op, err)
		}
		raw = b
	}
	id := uuid.NewString()
	b, err := json.Marshal(frame{ID: id, Type: op, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", op, err)
	}

	task := &pending{done: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.queue[id] = task
	err = c.conn.WriteMessage(websocket.TextMessage, b)
	c.mu.Unlock()
	if err != nil {
		c.pop(id)
		return nil, fmt.Errorf("write %s: %w", op, err)
	}

	select {
	case <-task.done:
	case <-time.After(c.timeout):
		c.pop(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.pop(id)
		return nil, ctx.Err()
	}
	if task.err != nil {
		return nil, fmt.Errorf("%s: %w", op, task.err)
	}
	return task.payload, nil
}

func (c *Client) RouterCapabilities(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, opRouterCapabilities, nil)
}

type transportParams struct {
	ID string `json:"id"`
}

func (c *Client) AllocateTransports(ctx context.Context, room string, user domain.UserID) (*core.TransportPair, error) {
	payload, err := c.call(ctx, opCreateTransport, map[string]any{
		"roomId": room,
		"userId": user,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		ProducerTransportParams json.RawMessage `json:"producerTransportParams"`
		ConsumerTransportParams json.RawMessage `json:"consumerTransportParams"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode transport pair: %w", err)
	}
	var prod, cons transportParams
	if err := json.Unmarshal(resp.ProducerTransportParams, &prod); err != nil {
		return nil, fmt.Errorf("decode producer transport id: %w", err)
	}
	if err := json.Unmarshal(resp.ConsumerTransportParams, &cons); err != nil {
		return nil, fmt.Errorf("decode consumer transport id: %w", err)
	}
	return &core.TransportPair{
		ProducerID:     prod.ID,
		ConsumerID:     cons.ID,
		ProducerParams: resp.ProducerTransportParams,
		ConsumerParams: resp.ConsumerTransportParams,
	}, nil
}

func (c *Client) ConnectTransport(ctx context.Context, room string, user domain.UserID, transportID string, dtls json.RawMessage) error {
	_, err := c.call(ctx, opConnectTransport, map[string]any{
		"roomId":         room,
		"userId":         user,
		"transportId":    transportID,
		"dtlsParameters": dtls,
	})
	return err
}

func (c *Client) Produce(ctx context.Context, room string, user domain.UserID, transportID, kind string, rtp json.RawMessage) (string, error) {
	payload, err := c.call(ctx, opProduce, map[string]any{
		"roomId":        room,
		"userId":        user,
		"transportId":   transportID,
		"kind":          kind,
		"rtpParameters": rtp,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		ProducerID string `json:"producerId"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("decode producer id: %w", err)
	}
	return resp.ProducerID, nil
}

func (c *Client) Consume(ctx context.Context, room string, user domain.UserID, transportID, producerID string, caps json.RawMessage) (*core.ConsumerInfo, error) {
	payload, err := c.call(ctx, opConsume, map[string]any{
		"roomId":          room,
		"userId":          user,
		"transportId":     transportID,
		"producerId":      producerID,
		"rtpCapabilities": caps,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		ConsumerID    string          `json:"consumerId"`
		ProducerID    string          `json:"producerId"`
		Kind          string          `json:"kind"`
		RTPParameters json.RawMessage `json:"rtpParameters"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode consumer: %w", err)
	}
	return &core.ConsumerInfo{
		ConsumerID:    resp.ConsumerID,
		ProducerID:    resp.ProducerID,
		Kind:          resp.Kind,
		RTPParameters: resp.RTPParameters,
	}, nil
}

func (c *Client) ReleaseUser(ctx context.Context, room string, user domain.UserID) error {
	_, err := c.call(ctx, opRemoveUser, map[string]any{
		"roomId": room,
		"userId": user,
	})
	return err
}
