// Package signal owns the client-facing websocket: one controller per
// process, one connection handler per client, dispatching the wire
// protocol into the proximity, group and call coordinators.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/app"
	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
	"github.com/prajyot7070/MetaSpace/internal/metrics"
	"github.com/prajyot7070/MetaSpace/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Orch       *app.Orchestrator
	Spawn      domain.Point
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(orch *app.Orchestrator, spawn domain.Point, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Orch:       orch,
		Spawn:      spawn,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's lifecycle.
// The lifecycle ctx is cancelable per connection; collaborator calls use
// the server ctx, so disconnection does not cancel in-flight call-setup.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.NewUserID()
	log.Info().Str("module", "signal").Str("user", string(id)).Msg("new WS connection")

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	sess := core.NewSession(id, ctl.Spawn, conn)
	connCtx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(id, sess, cancel)
	metrics.SessionsConnected.Inc()

	go ctl.writePump(connCtx, conn)
	go ctl.readPump(ctx, connCtx, sess, conn)
}

func (ctl *Controller) sendOut(c core.SignalConnection, msg protocol.Out) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", msg.Type).Msg("marshal reply")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) broadcast(space core.SpaceService, from domain.UserID, msg protocol.Out) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", msg.Type).Msg("marshal broadcast")
		return
	}
	space.Broadcast(from, b)
}
