package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// fakeConn records every frame pushed at it. It stands in for a live
// WebSocket session in registry/call/relay tests.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if c.full {
		return errConnFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// envelopes decodes everything sent so far.
func (c *fakeConn) envelopes(t *testing.T) []core.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("sent frame does not decode: %v", err)
		}
		out = append(out, env)
	}
	return out
}

// ofKind filters received envelopes by kind.
func (c *fakeConn) ofKind(t *testing.T, kind core.Kind) []core.Envelope {
	t.Helper()
	var out []core.Envelope
	for _, env := range c.envelopes(t) {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

var (
	errConnClosed = sentinel("conn closed")
	errConnFull   = sentinel("conn full")
)

type sentinel string

func (s sentinel) Error() string { return string(s) }

// testStack wires a registry, relay and call manager with fast timers.
type testStack struct {
	registry *Registry
	relay    *Relay
	calls    *CallManager
	conns    map[domain.IdentityID]*fakeConn
}

func newTestStack(t *testing.T, online ...domain.IdentityID) *testStack {
	t.Helper()
	reg := NewRegistry()
	relay := NewRelay(reg, SimplePolicy{}, 0.02)
	calls := NewCallManager(reg, relay, nil, SimplePolicy{}, 40*time.Millisecond, 25*time.Millisecond)

	s := &testStack{
		registry: reg,
		relay:    relay,
		calls:    calls,
		conns:    make(map[domain.IdentityID]*fakeConn),
	}
	for _, id := range online {
		s.connect(id)
	}
	return s
}

// connect registers an identity under a fresh fake connection.
func (s *testStack) connect(id domain.IdentityID) *fakeConn {
	conn := &fakeConn{}
	s.conns[id] = conn
	s.registry.Register(id, string(id), core.ConnID("conn-"+string(id)+"-"+uuid.NewString()), conn)
	return conn
}
