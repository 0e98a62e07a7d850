package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/app"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// handleTelemetry feeds one motion/voice frame into the relay. Frames are
// latest-wins: any failure short of a protocol violation is dropped
// silently rather than surfaced, the next frame supersedes it anyway.
func (ctl *SignalWSController) handleTelemetry(c *wsSignalConn, from domain.IdentityID, env core.Envelope) {
	var p core.TelemetryPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad telemetry payload")
		return
	}
	frame := &domain.TelemetryFrame{
		CallID:    env.CallID,
		From:      from,
		Groups:    p.Groups,
		Timestamp: p.Timestamp,
	}
	err := ctl.Calls.Telemetry(from, frame)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrBadTransition), errors.Is(err, app.ErrNotParticipant), errors.Is(err, app.ErrNoSuchCall):
		ctl.sendError(c, env.CallID, err.Error())
	default:
		log.Debug().Err(err).Str("module", "signal").Str("call", string(env.CallID)).Msg("telemetry dropped")
	}
}
