package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
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
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		c.Close()
		ctl.onDisconnect(c)
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleEnvelope(c, data)
		}
	}
}

// onDisconnect tears connection state down. The registry ignores the
// unregister when a newer connection already superseded this one; only a
// genuine offline transition reaches the call table.
func (ctl *SignalWSController) onDisconnect(c *wsSignalConn) {
	id := c.boundIdentity()
	if id == "" {
		return
	}
	if ctl.Registry.Unregister(id, c.id) {
		ctl.Calls.HandleDisconnect(id)
	}
}

func (ctl *SignalWSController) handleEnvelope(c *wsSignalConn, data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		// Malformed payloads are dropped without state change.
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad envelope")
		return
	}

	if env.Kind == core.KindPing {
		ctl.sendEnvelope(c, core.Envelope{Kind: core.KindPong, TS: time.Now().UnixMilli()})
		return
	}
	if env.Kind == core.KindRegisterPresence {
		ctl.handleRegister(c, env)
		return
	}

	identity := c.boundIdentity()
	if identity == "" {
		ctl.sendError(c, env.CallID, "not registered")
		return
	}
	ctl.Registry.Touch(identity)

	switch env.Kind {
	case core.KindPresenceSnapshot:
		ctl.handleSnapshot(c)
	case core.KindInviteCall:
		ctl.handleInvite(c, identity, env)
	case core.KindAcceptCall:
		ctl.handleAccept(c, identity, env)
	case core.KindRejectCall:
		ctl.handleReject(c, identity, env)
	case core.KindOffer:
		ctl.handleOffer(c, identity, env)
	case core.KindAnswer:
		ctl.handleAnswer(c, identity, env)
	case core.KindICECandidate:
		ctl.handleCandidate(c, identity, env)
	case core.KindCallState:
		ctl.handleCallState(c, identity, env)
	case core.KindHangup:
		ctl.handleHangup(c, identity, env)
	case core.KindTelemetryFrame:
		ctl.handleTelemetry(c, identity, env)
	default:
		log.Warn().Str("module", "signal").Str("kind", string(env.Kind)).Msg("unroutable kind")
	}
}
