package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// Call is one negotiation between exactly two identities. All mutation
// goes through CallManager methods holding mu; the state field is only
// ever advanced along the transition table, never written ad hoc.
type Call struct {
	mu sync.Mutex

	id     domain.CallID
	caller domain.IdentityID
	callee domain.IdentityID
	state  domain.CallState

	// offerAuthor is fixed when the call enters negotiation: the inviting
	// peer authors the offer, so the two sides never race to create one.
	offerAuthor  domain.IdentityID
	offerSeen    bool
	offerRetried bool
	lastOffer    json.RawMessage

	inviteTimer *time.Timer
	answerTimer *time.Timer
	// Timer generations: a timer callback compares its captured generation
	// against the current one under mu, so a cancelled timer never acts.
	inviteGen int
	answerGen int
}

func newCall(id domain.CallID, caller, callee domain.IdentityID) *Call {
	return &Call{id: id, caller: caller, callee: callee, state: domain.CallInviting}
}

func (c *Call) ID() domain.CallID { return c.id }

func (c *Call) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Call) Participants() (caller, callee domain.IdentityID) {
	return c.caller, c.callee
}

// peerOf returns the other participant, or "" when id is not a party.
func (c *Call) peerOf(id domain.IdentityID) domain.IdentityID {
	switch id {
	case c.caller:
		return c.callee
	case c.callee:
		return c.caller
	}
	return ""
}

// cancelInviteTimer must be called with mu held.
func (c *Call) cancelInviteTimer() {
	c.inviteGen++
	if c.inviteTimer != nil {
		c.inviteTimer.Stop()
		c.inviteTimer = nil
	}
}

// cancelAnswerTimer must be called with mu held.
func (c *Call) cancelAnswerTimer() {
	c.answerGen++
	if c.answerTimer != nil {
		c.answerTimer.Stop()
		c.answerTimer = nil
	}
}

// finish moves the call to a terminal state and kills both timers.
// Must be called with mu held.
func (c *Call) finish(state domain.CallState) {
	c.cancelInviteTimer()
	c.cancelAnswerTimer()
	c.state = state
}
