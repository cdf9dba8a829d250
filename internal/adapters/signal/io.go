package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.MemberID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("member", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(id)
		}
		c.Close()
		cancel()
	}()

	readTimeout := ctl.opts.PingPeriod * 2
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("member", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("member", string(id)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
			ctl.handleSignal(id, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(id domain.MemberID, c *WsSignalConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "", protocol.ErrCodeBadPayload)
		return
	}

	switch env.Type {
	case protocol.TypeCreateRoom:
		ctl.handleCreateRoom(id, c, env)
	case protocol.TypeJoinRoom:
		ctl.handleJoin(id, c, data)
	case protocol.TypeLeaveRoom:
		ctl.handleLeave(id, c)
	case protocol.TypePlaybackAction:
		ctl.handlePlaybackAction(id, c, data)
	case protocol.TypePlaybackRequest:
		ctl.handlePlaybackRequest(id, c, data)
	case protocol.TypePlaybackReport:
		ctl.handlePlaybackReport(id, c, data)
	case protocol.TypePing:
		ctl.handlePing(c, data)
	case protocol.TypeRename:
		ctl.handleRename(id, c, data)
	case protocol.TypeWhoAmI:
		ctl.handleWhoAmI(id, c, env.ReqID)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, reqID, code string) {
	ctl.sendJSON(c, protocol.Error{Type: protocol.TypeError, ReqID: reqID, Error: code})
}
