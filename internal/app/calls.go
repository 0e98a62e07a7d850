package app

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

var (
	ErrTargetOffline  = errors.New("recipient not reachable")
	ErrNoSuchCall     = errors.New("no such call")
	ErrBadTransition  = errors.New("message not allowed in current call state")
	ErrNotParticipant = errors.New("identity is not a participant of this call")
	ErrWrongSender    = errors.New("sender may not author this message")
	ErrSelfCall       = errors.New("cannot call yourself")
	ErrRateLimited    = errors.New("too many invites")
)

// CallManager owns the table of live call state machines, keyed by call
// id. Every signal is validated against the call's current state and
// sender before anything is forwarded; an illegal message never advances
// state. Routing always goes through the registry at send time, so a
// participant that reconnected mid-call is reached on its new connection.
type CallManager struct {
	mu    sync.Mutex
	calls map[domain.CallID]*Call

	registry *Registry
	relay    *Relay
	limiter  *InviteLimiter
	policy   Policy

	inviteTimeout time.Duration
	answerTimeout time.Duration
}

func NewCallManager(registry *Registry, relay *Relay, limiter *InviteLimiter, policy Policy, inviteTimeout, answerTimeout time.Duration) *CallManager {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &CallManager{
		calls:         make(map[domain.CallID]*Call),
		registry:      registry,
		relay:         relay,
		limiter:       limiter,
		policy:        policy,
		inviteTimeout: inviteTimeout,
		answerTimeout: answerTimeout,
	}
}

// Get returns the live call for id.
func (m *CallManager) Get(id domain.CallID) (*Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	return c, ok
}

// Invite starts a call from caller to callee. When suppliedID is empty the
// id is derived from the sorted identity pair, which collapses two
// simultaneous invites for the same pair into a single call: the second
// invite finds the live call and is absorbed as a no-op.
func (m *CallManager) Invite(caller, callee domain.IdentityID, suppliedID domain.CallID) (domain.CallID, error) {
	if caller == callee {
		return "", ErrSelfCall
	}
	if m.limiter != nil && !m.limiter.Allow(caller) {
		return "", ErrRateLimited
	}

	id := suppliedID
	if id == "" {
		id = domain.PairCallID(caller, callee)
	}

	m.mu.Lock()
	if existing, ok := m.calls[id]; ok {
		if !existing.State().Terminal() {
			m.mu.Unlock()
			if existing.peerOf(caller) == "" {
				return "", ErrNotParticipant
			}
			log.Info().Str("module", "app.calls").Str("call", string(id)).
				Str("caller", string(caller)).Msg("invite collapsed into live call")
			return id, nil
		}
		delete(m.calls, id)
	}

	if _, ok := m.registry.Resolve(callee); !ok {
		// The callee never learns about this call; it is born failed.
		c := newCall(id, caller, callee)
		c.state = domain.CallFailed
		m.calls[id] = c
		m.mu.Unlock()
		log.Info().Str("module", "app.calls").Str("call", string(id)).
			Str("callee", string(callee)).Msg("invite target offline")
		return id, ErrTargetOffline
	}

	c := newCall(id, caller, callee)
	m.calls[id] = c
	m.mu.Unlock()

	c.mu.Lock()
	gen := c.inviteGen
	c.inviteTimer = time.AfterFunc(m.inviteTimeout, func() { m.onInviteTimeout(c, gen) })
	c.mu.Unlock()

	m.forward(c.callee, core.KindInviteCall, id, caller, core.InviteCallPayload{Callee: callee})
	log.Info().Str("module", "app.calls").Str("call", string(id)).
		Str("caller", string(caller)).Str("callee", string(callee)).Msg("inviting")
	return id, nil
}

// Accept moves the call into negotiation. Only the invited identity may
// accept; the inviting peer becomes the offer author.
func (m *CallManager) Accept(from domain.IdentityID, id domain.CallID) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	if c.peerOf(from) == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state != domain.CallInviting {
		c.mu.Unlock()
		return ErrBadTransition
	}
	if from != c.callee {
		c.mu.Unlock()
		return ErrWrongSender
	}
	c.cancelInviteTimer()
	c.state = domain.CallNegotiating
	c.offerAuthor = c.caller
	c.mu.Unlock()

	m.forward(c.caller, core.KindAcceptCall, id, from, nil)
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("accepted, negotiating")
	return nil
}

// Reject ends the call before negotiation; the caller is told why.
func (m *CallManager) Reject(from domain.IdentityID, id domain.CallID, reason string) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	if c.peerOf(from) == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state != domain.CallInviting {
		c.mu.Unlock()
		return ErrBadTransition
	}
	if from != c.callee {
		c.mu.Unlock()
		return ErrWrongSender
	}
	c.finish(domain.CallEnded)
	c.mu.Unlock()

	m.forward(c.caller, core.KindRejectCall, id, from, core.RejectCallPayload{Reason: reason})
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("reason", reason).Msg("rejected")
	return nil
}

// Offer forwards the negotiation offer verbatim. Only the designated
// offer author may send it; a response timer guards the answer.
func (m *CallManager) Offer(from domain.IdentityID, id domain.CallID, payload json.RawMessage) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	if c.peerOf(from) == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state != domain.CallNegotiating {
		c.mu.Unlock()
		return ErrBadTransition
	}
	if from != c.offerAuthor {
		c.mu.Unlock()
		return ErrWrongSender
	}
	c.offerSeen = true
	c.lastOffer = payload
	c.cancelAnswerTimer()
	gen := c.answerGen
	c.answerTimer = time.AfterFunc(m.answerTimeout, func() { m.onAnswerTimeout(c, gen) })
	peer := c.peerOf(from)
	c.mu.Unlock()

	m.forwardRaw(peer, core.KindOffer, id, from, payload)
	return nil
}

// Answer forwards the response to an offer and clears the response timer.
// Only the non-author may answer, and only after an offer went out.
func (m *CallManager) Answer(from domain.IdentityID, id domain.CallID, payload json.RawMessage) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	if c.peerOf(from) == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state != domain.CallNegotiating || !c.offerSeen {
		c.mu.Unlock()
		return ErrBadTransition
	}
	if from == c.offerAuthor {
		c.mu.Unlock()
		return ErrWrongSender
	}
	c.cancelAnswerTimer()
	peer := c.peerOf(from)
	c.mu.Unlock()

	m.forwardRaw(peer, core.KindAnswer, id, from, payload)
	return nil
}

// Candidate forwards an ICE candidate unchanged. Either participant, any
// number of times, while negotiating or connected.
func (m *CallManager) Candidate(from domain.IdentityID, id domain.CallID, payload json.RawMessage) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	peer := c.peerOf(from)
	if peer == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state != domain.CallNegotiating && c.state != domain.CallConnected {
		c.mu.Unlock()
		return ErrBadTransition
	}
	c.mu.Unlock()

	m.forwardRaw(peer, core.KindICECandidate, id, from, payload)
	return nil
}

// MarkConnected is the external connectivity confirmation: the peers'
// transport reports the link is up. It activates the telemetry relay.
func (m *CallManager) MarkConnected(from domain.IdentityID, id domain.CallID) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	if from != "" && c.peerOf(from) == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state == domain.CallConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state != domain.CallNegotiating {
		c.mu.Unlock()
		return ErrBadTransition
	}
	c.cancelAnswerTimer()
	c.state = domain.CallConnected
	c.mu.Unlock()

	m.relay.Activate(id, c.caller, c.callee)
	m.notifyState(c.caller, id, domain.CallConnected, "")
	m.notifyState(c.callee, id, domain.CallConnected, "")
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("connected")
	return nil
}

// Hangup ends a negotiating or connected call; the counterpart is told.
func (m *CallManager) Hangup(from domain.IdentityID, id domain.CallID) error {
	c, ok := m.Get(id)
	if !ok {
		return ErrNoSuchCall
	}
	c.mu.Lock()
	peer := c.peerOf(from)
	if peer == "" {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.state != domain.CallNegotiating && c.state != domain.CallConnected {
		c.mu.Unlock()
		return ErrBadTransition
	}
	c.finish(domain.CallEnded)
	c.mu.Unlock()

	m.relay.Deactivate(id)
	m.forward(peer, core.KindHangup, id, from, nil)
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("hung up")
	return nil
}

// Telemetry routes a frame through the relay of its connected call.
func (m *CallManager) Telemetry(from domain.IdentityID, frame *domain.TelemetryFrame) error {
	c, ok := m.Get(frame.CallID)
	if !ok {
		return ErrNoSuchCall
	}
	if c.peerOf(from) == "" {
		return ErrNotParticipant
	}
	if c.State() != domain.CallConnected {
		return ErrBadTransition
	}
	frame.From = from
	return m.relay.Forward(from, frame)
}

// HandleDisconnect is called when an identity genuinely went offline (its
// close was not a superseded reconnect). A call that is negotiating or
// connected ends as an implicit hangup and the survivor is notified; a
// ringing call is left alone so the party can reconnect before the invite
// timer runs out.
func (m *CallManager) HandleDisconnect(id domain.IdentityID) {
	m.mu.Lock()
	affected := make([]*Call, 0, 2)
	for _, c := range m.calls {
		if c.peerOf(id) != "" {
			affected = append(affected, c)
		}
	}
	m.mu.Unlock()

	for _, c := range affected {
		c.mu.Lock()
		if c.state != domain.CallNegotiating && c.state != domain.CallConnected {
			c.mu.Unlock()
			continue
		}
		c.finish(domain.CallEnded)
		peer := c.peerOf(id)
		c.mu.Unlock()

		m.relay.Deactivate(c.id)
		m.notifyState(peer, c.id, domain.CallEnded, "peer disconnected")
		log.Info().Str("module", "app.calls").Str("call", string(c.id)).
			Str("identity", string(id)).Msg("ended by transport loss")
	}
}

// Reap drops terminal calls from the table. Terminal calls are kept until
// reaped so that late signals get ErrBadTransition rather than
// ErrNoSuchCall, and so a fresh pair invite can replace them.
func (m *CallManager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.calls {
		if c.State().Terminal() {
			delete(m.calls, id)
			n++
		}
	}
	return n
}

func (m *CallManager) onInviteTimeout(c *Call, gen int) {
	c.mu.Lock()
	if c.state != domain.CallInviting || gen != c.inviteGen {
		c.mu.Unlock()
		return
	}
	c.finish(domain.CallFailed)
	c.mu.Unlock()

	m.notifyState(c.caller, c.id, domain.CallFailed, "invite timed out")
	log.Info().Str("module", "app.calls").Str("call", string(c.id)).Msg("invite timeout")
}

func (m *CallManager) onAnswerTimeout(c *Call, gen int) {
	c.mu.Lock()
	if c.state != domain.CallNegotiating || gen != c.answerGen {
		c.mu.Unlock()
		return
	}
	if !c.offerRetried {
		c.offerRetried = true
		c.cancelAnswerTimer()
		next := c.answerGen
		c.answerTimer = time.AfterFunc(m.answerTimeout, func() { m.onAnswerTimeout(c, next) })
		offer := c.lastOffer
		author := c.offerAuthor
		peer := c.peerOf(author)
		c.mu.Unlock()

		m.forwardRaw(peer, core.KindOffer, c.id, author, offer)
		log.Info().Str("module", "app.calls").Str("call", string(c.id)).Msg("offer retried")
		return
	}
	c.finish(domain.CallFailed)
	c.mu.Unlock()

	m.relay.Deactivate(c.id)
	m.notifyState(c.caller, c.id, domain.CallFailed, "no answer to offer")
	m.notifyState(c.callee, c.id, domain.CallFailed, "no answer to offer")
	log.Info().Str("module", "app.calls").Str("call", string(c.id)).Msg("offer timeout, call failed")
}

func (m *CallManager) forward(to domain.IdentityID, kind core.Kind, id domain.CallID, from domain.IdentityID, payload any) {
	env, err := core.NewEnvelope(kind, id, from, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.calls").Msg("build envelope")
		return
	}
	m.deliver(to, env)
}

func (m *CallManager) forwardRaw(to domain.IdentityID, kind core.Kind, id domain.CallID, from domain.IdentityID, payload json.RawMessage) {
	env := core.Envelope{Kind: kind, CallID: id, From: from, Payload: payload, TS: time.Now().UnixMilli()}
	m.deliver(to, env)
}

func (m *CallManager) notifyState(to domain.IdentityID, id domain.CallID, state domain.CallState, reason string) {
	m.forward(to, core.KindCallState, id, "", core.CallStatePayload{State: state.String(), Reason: reason})
}

func (m *CallManager) deliver(to domain.IdentityID, env core.Envelope) {
	conn, ok := m.registry.Resolve(to)
	if !ok {
		log.Warn().Str("module", "app.calls").Str("to", string(to)).
			Str("kind", string(env.Kind)).Msg("deliver: target offline")
		return
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.calls").Msg("encode envelope")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		if m.policy.OnBackpressure(env.Kind) == Disconnect {
			log.Warn().Str("module", "app.calls").Str("to", string(to)).
				Str("kind", string(env.Kind)).Msg("backpressure, disconnecting slow peer")
			conn.Close()
		}
	}
}
