package core

import (
	"errors"
	"testing"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

func TestDecodeRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte(`{"kind":"format-hard-drive"}`)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: err=%v, want ErrUnknownKind", err)
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("malformed frame must not decode")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()
	env, err := NewEnvelope(KindInviteCall, domain.PairCallID("a", "b"), "a", InviteCallPayload{Callee: "b"})
	if err != nil {
		t.Fatal(err)
	}
	frame, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindInviteCall || got.From != "a" || got.CallID != env.CallID {
		t.Errorf("round trip mangled envelope: %+v", got)
	}
	var p InviteCallPayload
	if err := got.DecodePayload(&p); err != nil {
		t.Fatal(err)
	}
	if p.Callee != "b" {
		t.Errorf("callee = %s, want b", p.Callee)
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	t.Parallel()
	env := Envelope{Kind: KindAcceptCall}
	var p RejectCallPayload
	if err := env.DecodePayload(&p); err == nil {
		t.Error("empty payload must not decode silently")
	}
}
