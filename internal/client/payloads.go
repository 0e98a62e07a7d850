package client

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// Typed send helpers. Negotiation payloads use the pion session types so
// the caller's RTC stack plugs in directly; the server forwards them as
// opaque bytes.

func (m *Manager) Invite(callee domain.IdentityID) error {
	env, err := core.NewEnvelope(core.KindInviteCall, "", m.Identity, core.InviteCallPayload{Callee: callee})
	if err != nil {
		return err
	}
	return m.send(env)
}

func (m *Manager) Accept(callID domain.CallID) error {
	return m.send(core.Envelope{Kind: core.KindAcceptCall, CallID: callID, From: m.Identity, TS: time.Now().UnixMilli()})
}

func (m *Manager) Reject(callID domain.CallID, reason string) error {
	env, err := core.NewEnvelope(core.KindRejectCall, callID, m.Identity, core.RejectCallPayload{Reason: reason})
	if err != nil {
		return err
	}
	return m.send(env)
}

func (m *Manager) SendOffer(callID domain.CallID, sdp webrtc.SessionDescription) error {
	return m.sendRaw(core.KindOffer, callID, sdp)
}

func (m *Manager) SendAnswer(callID domain.CallID, sdp webrtc.SessionDescription) error {
	return m.sendRaw(core.KindAnswer, callID, sdp)
}

func (m *Manager) SendCandidate(callID domain.CallID, cand webrtc.ICECandidateInit) error {
	return m.sendRaw(core.KindICECandidate, callID, cand)
}

// DecodeOffer parses a forwarded offer/answer payload back into the pion
// session description.
func DecodeOffer(payload []byte) (webrtc.SessionDescription, error) {
	var sdp webrtc.SessionDescription
	err := json.Unmarshal(payload, &sdp)
	return sdp, err
}

// DecodeCandidate parses a forwarded ICE candidate payload.
func DecodeCandidate(payload []byte) (webrtc.ICECandidateInit, error) {
	var cand webrtc.ICECandidateInit
	err := json.Unmarshal(payload, &cand)
	return cand, err
}

// NotifyConnected reports the transport's own connectivity confirmation,
// which flips the call to connected and activates the telemetry relay.
func (m *Manager) NotifyConnected(callID domain.CallID) error {
	env, err := core.NewEnvelope(core.KindCallState, callID, m.Identity, core.CallStatePayload{
		State: domain.CallConnected.String(),
	})
	if err != nil {
		return err
	}
	return m.send(env)
}

func (m *Manager) Hangup(callID domain.CallID) error {
	return m.send(core.Envelope{Kind: core.KindHangup, CallID: callID, From: m.Identity, TS: time.Now().UnixMilli()})
}

func (m *Manager) SendTelemetry(callID domain.CallID, groups map[domain.FieldGroup]domain.GroupValues) error {
	env, err := core.NewEnvelope(core.KindTelemetryFrame, callID, m.Identity, core.TelemetryPayload{
		Groups:    groups,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return m.send(env)
}

func (m *Manager) RequestSnapshot() error {
	return m.send(core.Envelope{Kind: core.KindPresenceSnapshot, From: m.Identity, TS: time.Now().UnixMilli()})
}

func (m *Manager) sendRaw(kind core.Kind, callID domain.CallID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.send(core.Envelope{
		Kind:    kind,
		CallID:  callID,
		From:    m.Identity,
		Payload: raw,
		TS:      time.Now().UnixMilli(),
	})
}
