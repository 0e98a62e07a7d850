package domain

import (
	"crypto/sha1"
	"encoding/hex"
)

type CallID string

// CallState progresses strictly forward; Ended and Failed are terminal.
type CallState int

const (
	CallIdle CallState = iota
	CallInviting
	CallNegotiating
	CallConnected
	CallEnded
	CallFailed
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallInviting:
		return "inviting"
	case CallNegotiating:
		return "negotiating"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	case CallFailed:
		return "failed"
	}
	return "unknown"
}

func (s CallState) Terminal() bool {
	return s == CallEnded || s == CallFailed
}

// PairCallID derives the call id from the sorted identity pair, so both
// sides of a simultaneous invite compute the same id and the two invites
// collapse into one call.
func PairCallID(a, b IdentityID) CallID {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	sum := sha1.Sum([]byte(string(lo) + "|" + string(hi)))
	return CallID("call:" + hex.EncodeToString(sum[:8]))
}
