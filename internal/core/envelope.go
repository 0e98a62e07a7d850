package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// Kind tags one envelope on the signaling channel. The set is closed:
// anything outside it is dropped at the dispatch point.
type Kind string

const (
	KindRegisterPresence Kind = "register-presence"
	KindPresenceChanged  Kind = "presence-changed"
	KindPresenceSnapshot Kind = "presence-snapshot"
	KindInviteCall       Kind = "invite-call"
	KindAcceptCall       Kind = "accept-call"
	KindRejectCall       Kind = "reject-call"
	KindOffer            Kind = "offer"
	KindAnswer           Kind = "answer"
	KindICECandidate     Kind = "ice-candidate"
	KindHangup           Kind = "hangup"
	KindCallState        Kind = "call-state"
	KindTelemetryFrame   Kind = "telemetry-frame"
	KindPing             Kind = "ping"
	KindPong             Kind = "pong"
	KindError            Kind = "error"
)

var ErrUnknownKind = errors.New("unknown envelope kind")

// Envelope is the single wire message shape. From is stamped server-side
// from the registered identity, never trusted from the client payload.
type Envelope struct {
	Kind    Kind              `json:"kind"`
	CallID  domain.CallID     `json:"call_id,omitempty"`
	From    domain.IdentityID `json:"from,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
	TS      int64             `json:"ts,omitempty"`
}

type RegisterPresencePayload struct {
	Identity    domain.IdentityID `json:"identity"`
	DisplayName string            `json:"display_name"`
}

type PresenceChangedPayload struct {
	Identity    domain.IdentityID `json:"identity"`
	DisplayName string            `json:"display_name,omitempty"`
	Online      bool              `json:"online"`
	Timestamp   int64             `json:"timestamp"`
}

type PresenceSnapshotPayload struct {
	Entries []PresenceInfo `json:"entries"`
}

type InviteCallPayload struct {
	Callee domain.IdentityID `json:"callee"`
}

type RejectCallPayload struct {
	Reason string `json:"reason,omitempty"`
}

// CallStatePayload notifies a participant of a terminal or connectivity
// transition it did not author (timeout, peer disconnect, connected).
type CallStatePayload struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type TelemetryPayload struct {
	Groups    map[domain.FieldGroup]domain.GroupValues `json:"groups"`
	Timestamp int64                                    `json:"timestamp"`
}

// NewEnvelope marshals payload into a stamped envelope.
func NewEnvelope(kind Kind, callID domain.CallID, from domain.IdentityID, payload any) (Envelope, error) {
	env := Envelope{Kind: kind, CallID: callID, From: from, TS: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// ErrorEnvelope builds the rejection sent back to a sender whose message
// could not be routed or was not legal in the call's current state.
func ErrorEnvelope(callID domain.CallID, msg string) Envelope {
	return Envelope{Kind: KindError, CallID: callID, Error: msg, TS: time.Now().UnixMilli()}
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return Frame(b), nil
}

// Decode parses a wire frame into an envelope and validates the kind.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	switch env.Kind {
	case KindRegisterPresence, KindPresenceChanged, KindPresenceSnapshot,
		KindInviteCall, KindAcceptCall, KindRejectCall,
		KindOffer, KindAnswer, KindICECandidate, KindHangup, KindCallState,
		KindTelemetryFrame, KindPing, KindPong, KindError:
		return env, nil
	}
	return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Kind, err)
	}
	return nil
}
