package app

import "github.com/Karanveer2330/Persona-Chat-sub000/internal/core"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	Disconnect
)

// Policy decides what happens when a peer's send buffer is full.
type Policy interface {
	OnBackpressure(kind core.Kind) BackpressureAction
}

// SimplePolicy drops latest-wins traffic and disconnects peers too slow
// to keep up with control signals.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(kind core.Kind) BackpressureAction {
	switch kind {
	case core.KindTelemetryFrame, core.KindPresenceChanged:
		return DropFrame
	}
	return Disconnect
}
