package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/app"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/config"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController owns the WebSocket side of the signaling channel:
// upgrade, pumps, and per-kind dispatch into the registry and call table.
type SignalWSController struct {
	Cfg      *config.Config
	Registry *app.Registry
	Calls    *app.CallManager
}

func NewSignalWSController(cfg *config.Config, registry *app.Registry, calls *app.CallManager) *SignalWSController {
	return &SignalWSController{Cfg: cfg, Registry: registry, Calls: calls}
}

// wsSignalConn is one live transport session. Its id is ephemeral and
// assigned at upgrade; the identity is bound by register-presence and a
// reconnect always arrives as a brand new wsSignalConn.
type wsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu       sync.RWMutex
	closed   bool
	identity domain.IdentityID
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

func (c *wsSignalConn) bind(id domain.IdentityID) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

func (c *wsSignalConn) boundIdentity() domain.IdentityID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, 64),
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}

func (ctl *SignalWSController) sendEnvelope(c *wsSignalConn, env core.Envelope) {
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode envelope")
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *SignalWSController) sendError(c *wsSignalConn, callID domain.CallID, msg string) {
	ctl.sendEnvelope(c, core.ErrorEnvelope(callID, msg))
}
