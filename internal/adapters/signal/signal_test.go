package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/app"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/config"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		Mode:               "release",
		ReadLimit:          32768,
		PingPeriod:         54 * time.Second,
		InviteTimeout:      5 * time.Second,
		AnswerTimeout:      5 * time.Second,
		TelemetryThreshold: 0.02,
	}
	registry := app.NewRegistry()
	relay := app.NewRelay(registry, app.SimplePolicy{}, cfg.TelemetryThreshold)
	calls := app.NewCallManager(registry, relay, nil, app.SimplePolicy{}, cfg.InviteTimeout, cfg.AnswerTimeout)
	ctl := NewSignalWSController(cfg, registry, calls)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func dialPeer(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env core.Envelope) {
	t.Helper()
	frame, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func register(t *testing.T, conn *websocket.Conn, id domain.IdentityID) {
	t.Helper()
	payload, _ := json.Marshal(core.RegisterPresencePayload{Identity: id, DisplayName: string(id)})
	sendEnvelope(t, conn, core.Envelope{Kind: core.KindRegisterPresence, Payload: payload})
	// Registration is confirmed by the automatic presence snapshot.
	readUntil(t, conn, core.KindPresenceSnapshot)
}

// readUntil skips unrelated traffic (presence churn, pongs) until an
// envelope of the wanted kind arrives.
func readUntil(t *testing.T, conn *websocket.Conn, kind core.Kind) core.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		env, err := core.Decode(data)
		if err != nil {
			t.Fatalf("bad envelope while waiting for %s: %v", kind, err)
		}
		if env.Kind == kind {
			return env
		}
	}
}

func TestSignalingEndToEnd(t *testing.T) {
	wsURL := newTestServer(t)

	bob := dialPeer(t, wsURL)
	register(t, bob, "bob")
	alice := dialPeer(t, wsURL)
	register(t, alice, "alice")

	// Invite travels to bob.
	payload, _ := json.Marshal(core.InviteCallPayload{Callee: "bob"})
	sendEnvelope(t, alice, core.Envelope{Kind: core.KindInviteCall, Payload: payload})
	invite := readUntil(t, bob, core.KindInviteCall)
	if invite.From != "alice" {
		t.Fatalf("invite from %s, want alice", invite.From)
	}
	callID := invite.CallID

	sendEnvelope(t, bob, core.Envelope{Kind: core.KindAcceptCall, CallID: callID})
	readUntil(t, alice, core.KindAcceptCall)

	sendEnvelope(t, alice, core.Envelope{Kind: core.KindOffer, CallID: callID, Payload: json.RawMessage(`{"sdp":"v=0"}`)})
	offer := readUntil(t, bob, core.KindOffer)
	if string(offer.Payload) != `{"sdp":"v=0"}` {
		t.Errorf("offer payload altered in transit: %s", offer.Payload)
	}

	sendEnvelope(t, bob, core.Envelope{Kind: core.KindAnswer, CallID: callID, Payload: json.RawMessage(`{"sdp":"v=1"}`)})
	readUntil(t, alice, core.KindAnswer)

	sendEnvelope(t, alice, core.Envelope{Kind: core.KindICECandidate, CallID: callID, Payload: json.RawMessage(`{"candidate":"c1"}`)})
	readUntil(t, bob, core.KindICECandidate)

	statePayload, _ := json.Marshal(core.CallStatePayload{State: "connected"})
	sendEnvelope(t, alice, core.Envelope{Kind: core.KindCallState, CallID: callID, Payload: statePayload})
	readUntil(t, bob, core.KindCallState)

	framePayload, _ := json.Marshal(core.TelemetryPayload{
		Groups: map[domain.FieldGroup]domain.GroupValues{
			domain.GroupLeftUpperArm: {"x": 0.3},
		},
		Timestamp: time.Now().UnixMilli(),
	})
	sendEnvelope(t, alice, core.Envelope{Kind: core.KindTelemetryFrame, CallID: callID, Payload: framePayload})
	frame := readUntil(t, bob, core.KindTelemetryFrame)
	if frame.From != "alice" {
		t.Errorf("telemetry sender = %s, want alice", frame.From)
	}
	var p core.TelemetryPayload
	if err := frame.DecodePayload(&p); err != nil {
		t.Fatal(err)
	}
	if p.Groups[domain.GroupLeftUpperArm]["x"] != 0.3 {
		t.Errorf("leftUpperArm.x = %v, want 0.3", p.Groups[domain.GroupLeftUpperArm]["x"])
	}

	sendEnvelope(t, alice, core.Envelope{Kind: core.KindHangup, CallID: callID})
	readUntil(t, bob, core.KindHangup)
}

func TestUnregisteredSenderRejected(t *testing.T) {
	wsURL := newTestServer(t)
	conn := dialPeer(t, wsURL)

	payload, _ := json.Marshal(core.InviteCallPayload{Callee: "bob"})
	sendEnvelope(t, conn, core.Envelope{Kind: core.KindInviteCall, Payload: payload})

	errEnv := readUntil(t, conn, core.KindError)
	if errEnv.Error != "not registered" {
		t.Errorf("error = %q, want 'not registered'", errEnv.Error)
	}
}

func TestInviteOfflineTargetReported(t *testing.T) {
	wsURL := newTestServer(t)
	conn := dialPeer(t, wsURL)
	register(t, conn, "alice")

	payload, _ := json.Marshal(core.InviteCallPayload{Callee: "ghost"})
	sendEnvelope(t, conn, core.Envelope{Kind: core.KindInviteCall, Payload: payload})

	errEnv := readUntil(t, conn, core.KindError)
	if !strings.Contains(errEnv.Error, "not reachable") {
		t.Errorf("error = %q, want a recipient-not-reachable signal", errEnv.Error)
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	wsURL := newTestServer(t)
	conn := dialPeer(t, wsURL)
	register(t, conn, "alice")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	// The connection survives and still answers pings.
	sendEnvelope(t, conn, core.Envelope{Kind: core.KindPing})
	readUntil(t, conn, core.KindPong)
}
