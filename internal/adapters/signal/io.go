package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
	"github.com/prajyot7070/MetaSpace/internal/metrics"
	"github.com/prajyot7070/MetaSpace/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	ping := time.NewTicker(ctl.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump processes inbound frames in receipt order. baseCtx outlives
// the connection and is what collaborator calls run on.
func (ctl *Controller) readPump(baseCtx, connCtx context.Context, sess core.MemberSession, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(sess.ID())).Msg("readPump closing")
		ctl.destroy(baseCtx, sess)
		c.Close()
	}()

	for {
		select {
		case <-connCtx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("user", string(sess.ID())).Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(baseCtx, sess, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, sess core.MemberSession, c core.SignalConnection, data []byte) {
	msgType, msg, err := protocol.Decode(data)
	if err != nil {
		ctl.decodeError(c, msgType, err)
		return
	}
	metrics.MessagesIn.WithLabelValues(msgType).Inc()

	switch p := msg.(type) {
	case *protocol.Join:
		ctl.handleJoin(ctx, sess, c, p)
	case *protocol.Move:
		ctl.handleMove(ctx, sess, c, p)
	case *protocol.RouterRTPCaps:
		ctl.sendOut(c, ctl.Orch.Calls.RouterCapabilities(ctx))
	case *protocol.Call:
		ctl.sendOut(c, ctl.Orch.Calls.Call(ctx, sess.ID(), p.Token))
	case *protocol.CallAccept:
		ctl.sendOut(c, ctl.Orch.Calls.Accept(ctx, sess.ID(), p.Token))
	case *protocol.CallReject:
		ctl.Orch.Calls.Reject(sess.ID(), domain.UserID(p.CallerID))
	case *protocol.ConnectTransport:
		ctl.sendOut(c, ctl.Orch.Calls.ConnectTransport(ctx, sess.ID(), p))
	case *protocol.Produce:
		ctl.sendOut(c, ctl.Orch.Calls.Produce(ctx, sess.ID(), p))
	case *protocol.Consume:
		ctl.sendOut(c, ctl.Orch.Calls.Consume(ctx, sess.ID(), p))
	}
}

// decodeError surfaces malformed call-family payloads as typed errors;
// movement messages are logged and dropped, the connection stays open.
func (ctl *Controller) decodeError(c core.SignalConnection, msgType string, err error) {
	if errors.Is(err, protocol.ErrUnknownType) {
		log.Warn().Str("module", "signal").Str("type", msgType).Msg("unknown signal")
		return
	}
	log.Error().Err(err).Str("module", "signal").Str("type", msgType).Msg("bad payload")
	switch msgType {
	case protocol.TypeConnectTransport:
		ctl.sendOut(c, protocol.TransportError(err.Error()))
	case protocol.TypeProduce:
		ctl.sendOut(c, protocol.ProduceError(err.Error()))
	case protocol.TypeCall, protocol.TypeCallAccept, protocol.TypeCallReject, protocol.TypeConsume:
		ctl.sendOut(c, protocol.CallError(err.Error()))
	}
}
