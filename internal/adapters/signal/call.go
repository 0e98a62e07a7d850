package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/app"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

func (ctl *SignalWSController) handleInvite(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	var p core.InviteCallPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad invite payload")
		ctl.sendError(c, env.CallID, "bad_payload")
		return
	}
	id, err := ctl.Calls.Invite(from, p.Callee, env.CallID)
	if err != nil {
		ctl.sendError(c, id, err.Error())
		return
	}
}

func (ctl *SignalWSController) handleAccept(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	if err := ctl.Calls.Accept(from, env.CallID); err != nil {
		ctl.sendError(c, env.CallID, err.Error())
	}
}

func (ctl *SignalWSController) handleReject(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	var p core.RejectCallPayload
	if len(env.Payload) > 0 {
		if err := env.DecodePayload(&p); err != nil {
			ctl.sendError(c, env.CallID, "bad_payload")
			return
		}
	}
	if err := ctl.Calls.Reject(from, env.CallID, p.Reason); err != nil {
		ctl.sendError(c, env.CallID, err.Error())
	}
}

// The negotiation payloads below are opaque here: they are forwarded
// verbatim to the counterpart, never parsed server-side.

func (ctl *SignalWSController) handleOffer(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	if err := ctl.Calls.Offer(from, env.CallID, env.Payload); err != nil {
		ctl.sendError(c, env.CallID, err.Error())
	}
}

func (ctl *SignalWSController) handleAnswer(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	if err := ctl.Calls.Answer(from, env.CallID, env.Payload); err != nil {
		ctl.sendError(c, env.CallID, err.Error())
	}
}

func (ctl *SignalWSController) handleCandidate(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	if err := ctl.Calls.Candidate(from, env.CallID, env.Payload); err != nil {
		ctl.sendError(c, env.CallID, err.Error())
	}
}

// handleCallState accepts the transport's connectivity confirmation from
// a participant; anything else in a call-state envelope is ignored.
func (ctl *SignalWSController) handleCallState(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	var p core.CallStatePayload
	if err := env.DecodePayload(&p); err != nil {
		ctl.sendError(c, env.CallID, "bad_payload")
		return
	}
	if p.State != domain.CallConnected.String() {
		log.Debug().Str("module", "signal").Str("state", p.State).Msg("ignoring call-state")
		return
	}
	if err := ctl.Calls.MarkConnected(from, env.CallID); err != nil && !errors.Is(err, app.ErrBadTransition) {
		ctl.sendError(c, env.CallID, err.Error())
	}
}

func (ctl *SignalWSController) handleHangup(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	if err := ctl.Calls.Hangup(from, env.CallID); err != nil {
		ctl.sendError(c, env.CallID, err.Error())
	}
}
