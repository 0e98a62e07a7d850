package app

import (
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

var (
	ErrRelayInactive = errors.New("no active relay for call")
	ErrNotInRelay    = errors.New("sender is not a relay participant")
)

// Relay forwards telemetry frames between the two participants of a
// connected call. Frames go strictly cross-wise, in arrival order,
// at-most-once; a dropped frame is superseded by the next one.
//
// Slow-moving limb groups are elided: per call and per sender, the last
// forwarded value of each group is cached, and the group is included only
// when some component moved by more than the threshold. Facial and voice
// groups always pass through.
type Relay struct {
	mu       sync.RWMutex
	sessions map[domain.CallID]*relaySession

	registry  *Registry
	policy    Policy
	threshold float64
}

type relaySession struct {
	a, b domain.IdentityID

	mu       sync.Mutex
	lastSent map[domain.IdentityID]map[domain.FieldGroup]domain.GroupValues
}

func NewRelay(registry *Registry, policy Policy, threshold float64) *Relay {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Relay{
		sessions:  make(map[domain.CallID]*relaySession),
		registry:  registry,
		policy:    policy,
		threshold: threshold,
	}
}

// Activate opens a relay session for a call that just connected.
func (r *Relay) Activate(id domain.CallID, a, b domain.IdentityID) {
	r.mu.Lock()
	r.sessions[id] = &relaySession{
		a:        a,
		b:        b,
		lastSent: make(map[domain.IdentityID]map[domain.FieldGroup]domain.GroupValues, 2),
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.relay").Str("call", string(id)).Msg("relay activated")
}

// Deactivate drops the session and its last-sent cache.
func (r *Relay) Deactivate(id domain.CallID) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.relay").Str("call", string(id)).Msg("relay deactivated")
	}
}

// Active reports whether a relay session exists for the call.
func (r *Relay) Active(id domain.CallID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Forward compresses and delivers one frame to the sender's counterpart.
// The frame is never echoed to its own sender.
func (r *Relay) Forward(from domain.IdentityID, frame *domain.TelemetryFrame) error {
	r.mu.RLock()
	sess, ok := r.sessions[frame.CallID]
	r.mu.RUnlock()
	if !ok {
		return ErrRelayInactive
	}

	var dst domain.IdentityID
	switch from {
	case sess.a:
		dst = sess.b
	case sess.b:
		dst = sess.a
	default:
		return ErrNotInRelay
	}

	out := sess.compress(from, frame, r.threshold)
	if len(out.Groups) == 0 {
		// Everything under threshold and nothing always-sent: skip the
		// frame entirely, the peer keeps extrapolating from the last one.
		return nil
	}

	conn, online := r.registry.Resolve(dst)
	if !online {
		return ErrTargetOffline
	}
	env, err := core.NewEnvelope(core.KindTelemetryFrame, out.CallID, out.From, core.TelemetryPayload{
		Groups:    out.Groups,
		Timestamp: out.Timestamp,
	})
	if err != nil {
		return err
	}
	wire, err := env.Encode()
	if err != nil {
		return err
	}
	if err := conn.TrySend(wire); err != nil {
		// Telemetry is latest-wins; the policy normally says drop.
		if r.policy.OnBackpressure(core.KindTelemetryFrame) == Disconnect {
			conn.Close()
		}
		log.Debug().Str("module", "app.relay").Str("call", string(frame.CallID)).
			Str("dst", string(dst)).Msg("frame dropped on backpressure")
	}
	return nil
}

// compress builds the outgoing frame: always-sent groups pass through,
// other groups are included only when at least one component differs from
// the last forwarded value by more than threshold. Included groups update
// the cache; elided ones do not, so slow drift still gets through once it
// accumulates past the threshold.
func (s *relaySession) compress(from domain.IdentityID, frame *domain.TelemetryFrame, threshold float64) *domain.TelemetryFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.lastSent[from]
	if !ok {
		cache = make(map[domain.FieldGroup]domain.GroupValues)
		s.lastSent[from] = cache
	}

	out := &domain.TelemetryFrame{
		CallID:    frame.CallID,
		From:      from,
		Timestamp: frame.Timestamp,
		Groups:    make(map[domain.FieldGroup]domain.GroupValues, len(frame.Groups)),
	}
	for group, vals := range frame.Groups {
		if group.AlwaysSent() || groupChanged(cache[group], vals, threshold) {
			out.Groups[group] = vals
			cache[group] = vals
		}
	}
	return out
}

// groupChanged reports whether any component moved past the threshold.
// An unseen group (nil last) or a component set change always counts.
func groupChanged(last, next domain.GroupValues, threshold float64) bool {
	if last == nil || len(last) != len(next) {
		return true
	}
	for k, v := range next {
		prev, ok := last[k]
		if !ok {
			return true
		}
		if math.Abs(v-prev) > threshold {
			return true
		}
	}
	return false
}
