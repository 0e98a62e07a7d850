// Package client is the client-side connection manager for the signaling
// channel: it picks a reachable endpoint, keeps one persistent WebSocket
// alive with capped-backoff reconnects, re-registers presence on every
// connect, and dispatches incoming envelopes to caller callbacks.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// errServerClosed marks a close the server initiated on purpose; the
// manager treats it as final and does not reconnect.
var errServerClosed = errors.New("server initiated disconnect")

// Handlers receives decoded envelopes. Nil fields are skipped.
type Handlers struct {
	OnPresenceChanged  func(core.PresenceChangedPayload)
	OnPresenceSnapshot func([]core.PresenceInfo)
	OnInvite           func(callID domain.CallID, from domain.IdentityID)
	OnAccept           func(callID domain.CallID, from domain.IdentityID)
	OnReject           func(callID domain.CallID, from domain.IdentityID, reason string)
	OnOffer            func(callID domain.CallID, from domain.IdentityID, payload []byte)
	OnAnswer           func(callID domain.CallID, from domain.IdentityID, payload []byte)
	OnCandidate        func(callID domain.CallID, from domain.IdentityID, payload []byte)
	OnHangup           func(callID domain.CallID, from domain.IdentityID)
	OnCallState        func(callID domain.CallID, state, reason string)
	OnTelemetry        func(frame *domain.TelemetryFrame)
	OnError            func(callID domain.CallID, msg string)
	OnReconnecting     func(attempt int, delay time.Duration)
}

// Manager owns one signaling connection for one identity. Construct one
// per client process and hand it to consumers by reference.
type Manager struct {
	Identity     domain.IdentityID
	DisplayName  string
	Endpoints    []string
	PreferScheme string
	Backoff      Backoff
	Handlers     Handlers
	Smoother     *Smoother

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewManager(identity domain.IdentityID, displayName string, endpoints []string, h Handlers) *Manager {
	return &Manager{
		Identity:    identity,
		DisplayName: displayName,
		Endpoints:   endpoints,
		Backoff:     DefaultBackoff(),
		Handlers:    h,
		Smoother:    NewSmoother(DefaultSmoothing),
		HTTPClient:  &http.Client{Timeout: probeTimeout},
		Dialer:      &websocket.Dialer{HandshakeTimeout: probeTimeout},
	}
}

// Run connects and keeps the channel alive until ctx is cancelled, the
// server closes the session on purpose, or the reconnect budget runs out.
func (m *Manager) Run(ctx context.Context) error {
	for {
		base, err := SelectEndpoint(ctx, m.Endpoints, m.PreferScheme, m.HTTPClient)
		if err == nil {
			err = m.session(ctx, base)
			if errors.Is(err, errServerClosed) {
				log.Info().Str("module", "client").Msg("server closed the session, not reconnecting")
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, ok := m.Backoff.Next()
		if !ok {
			return fmt.Errorf("reconnect attempts exhausted: %w", err)
		}
		if m.Handlers.OnReconnecting != nil {
			m.Handlers.OnReconnecting(m.Backoff.Attempts(), delay)
		}
		log.Warn().Err(err).Str("module", "client").Dur("delay", delay).Msg("reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// session runs one connection lifetime: dial, register, read until error.
func (m *Manager) session(ctx context.Context, base string) error {
	wsURL, err := signalURL(base)
	if err != nil {
		return err
	}
	conn, resp, err := m.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.writeMu.Lock()
	m.conn = conn
	m.writeMu.Unlock()
	defer func() {
		m.writeMu.Lock()
		m.conn = nil
		m.writeMu.Unlock()
		conn.Close()
	}()

	// Registration is idempotent; the server's last-register-wins rule
	// makes re-sending it on every reconnect safe.
	if err := m.register(); err != nil {
		return err
	}
	m.Backoff.Reset()
	m.Smoother.Reset()
	log.Info().Str("module", "client").Str("endpoint", base).
		Str("identity", string(m.Identity)).Msg("connected and registered")

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errServerClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad envelope")
		return
	}
	h := m.Handlers
	switch env.Kind {
	case core.KindPresenceChanged:
		if h.OnPresenceChanged == nil {
			return
		}
		var p core.PresenceChangedPayload
		if env.DecodePayload(&p) == nil {
			h.OnPresenceChanged(p)
		}
	case core.KindPresenceSnapshot:
		if h.OnPresenceSnapshot == nil {
			return
		}
		var p core.PresenceSnapshotPayload
		if env.DecodePayload(&p) == nil {
			h.OnPresenceSnapshot(p.Entries)
		}
	case core.KindInviteCall:
		if h.OnInvite != nil {
			h.OnInvite(env.CallID, env.From)
		}
	case core.KindAcceptCall:
		if h.OnAccept != nil {
			h.OnAccept(env.CallID, env.From)
		}
	case core.KindRejectCall:
		if h.OnReject == nil {
			return
		}
		var p core.RejectCallPayload
		_ = env.DecodePayload(&p)
		h.OnReject(env.CallID, env.From, p.Reason)
	case core.KindOffer:
		if h.OnOffer != nil {
			h.OnOffer(env.CallID, env.From, env.Payload)
		}
	case core.KindAnswer:
		if h.OnAnswer != nil {
			h.OnAnswer(env.CallID, env.From, env.Payload)
		}
	case core.KindICECandidate:
		if h.OnCandidate != nil {
			h.OnCandidate(env.CallID, env.From, env.Payload)
		}
	case core.KindHangup:
		if h.OnHangup != nil {
			h.OnHangup(env.CallID, env.From)
		}
	case core.KindCallState:
		if h.OnCallState == nil {
			return
		}
		var p core.CallStatePayload
		if env.DecodePayload(&p) == nil {
			h.OnCallState(env.CallID, p.State, p.Reason)
		}
	case core.KindTelemetryFrame:
		if h.OnTelemetry == nil {
			return
		}
		var p core.TelemetryPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		frame := &domain.TelemetryFrame{
			CallID:    env.CallID,
			From:      env.From,
			Groups:    p.Groups,
			Timestamp: p.Timestamp,
		}
		h.OnTelemetry(m.Smoother.Apply(frame))
	case core.KindError:
		if h.OnError != nil {
			h.OnError(env.CallID, env.Error)
		}
	case core.KindPong:
	default:
		log.Debug().Str("module", "client").Str("kind", string(env.Kind)).Msg("unhandled kind")
	}
}

func (m *Manager) send(env core.Envelope) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.conn == nil {
		return errors.New("not connected")
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	return m.conn.WriteMessage(websocket.TextMessage, frame)
}

func (m *Manager) register() error {
	env, err := core.NewEnvelope(core.KindRegisterPresence, "", m.Identity, core.RegisterPresencePayload{
		Identity:    m.Identity,
		DisplayName: m.DisplayName,
	})
	if err != nil {
		return err
	}
	return m.send(env)
}
