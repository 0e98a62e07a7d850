package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// stubServer serves /healthz and one scripted ws session.
func stubServer(t *testing.T, session func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/ws/signal", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		session(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunRegistersAndStopsOnServerClose(t *testing.T) {
	t.Parallel()

	var sawRegister atomic.Bool
	srv := stubServer(t, func(conn *websocket.Conn) {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := core.Decode(data)
		if err != nil || env.Kind != core.KindRegisterPresence {
			return
		}
		var p core.RegisterPresencePayload
		if env.DecodePayload(&p) == nil && p.Identity == "alice" {
			sawRegister.Store(true)
		}

		// Push one presence event, then close the session on purpose.
		out, _ := core.NewEnvelope(core.KindPresenceChanged, "", "bob", core.PresenceChangedPayload{
			Identity: "bob", Online: true,
		})
		frame, _ := out.Encode()
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(100 * time.Millisecond)
	})

	presence := make(chan core.PresenceChangedPayload, 1)
	m := NewManager("alice", "Alice", []string{srv.URL}, Handlers{
		OnPresenceChanged: func(p core.PresenceChangedPayload) {
			select {
			case presence <- p:
			default:
			}
		},
	})
	m.Backoff = Backoff{Base: 10 * time.Millisecond, Max: 10 * time.Millisecond, MaxAttempts: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run after intentional server close: %v, want nil", err)
	}
	if !sawRegister.Load() {
		t.Error("manager never registered presence")
	}
	select {
	case p := <-presence:
		if p.Identity != "bob" || !p.Online {
			t.Errorf("presence event: %+v", p)
		}
	default:
		t.Error("presence event never dispatched")
	}
}

func TestRunReconnectsThenGivesUp(t *testing.T) {
	t.Parallel()

	// Healthy probe endpoint, but the ws endpoint refuses every dial:
	// the manager must retry and then give up once the attempt budget
	// is spent.
	var sessions atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/ws/signal", func(w http.ResponseWriter, r *http.Request) {
		sessions.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var retries atomic.Int32
	m := NewManager("alice", "Alice", []string{srv.URL}, Handlers{
		OnReconnecting: func(attempt int, delay time.Duration) { retries.Add(1) },
	})
	m.Backoff = Backoff{Base: 5 * time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 3}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.Run(ctx)
	if err == nil {
		t.Fatal("Run should fail once reconnect attempts are exhausted")
	}
	if got := retries.Load(); got != 3 {
		t.Errorf("retried %d times, want 3", got)
	}
	if got := sessions.Load(); got != 4 {
		t.Errorf("server saw %d dial attempts, want initial + 3 retries", got)
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	t.Parallel()
	srv := stubServer(t, func(conn *websocket.Conn) {
		// Read the register, then hold the session open.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
	})

	m := NewManager("alice", "Alice", []string{srv.URL}, Handlers{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run on cancel: want context error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSendRequiresConnection(t *testing.T) {
	t.Parallel()
	m := NewManager("alice", "Alice", nil, Handlers{})
	if err := m.Invite(domain.IdentityID("bob")); err == nil {
		t.Error("Invite without a connection must fail")
	}
}
