package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// handleRegister binds this connection to a stable identity. Registration
// is idempotent: a client re-sends it on every (re)connect and the
// registry's last-register-wins rule makes the repeats safe.
func (ctl *SignalWSController) handleRegister(c *wsSignalConn, env core.Envelope) {
	var p core.RegisterPresencePayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(c, "", "bad_payload")
		return
	}
	ident, err := domain.NewIdentity(p.Identity, p.DisplayName)
	if err != nil {
		ctl.sendError(c, "", err.Error())
		return
	}

	c.bind(ident.ID)
	ctl.Registry.Register(ident.ID, ident.DisplayName, c.id, c)
	log.Info().Str("module", "signal").Str("conn", string(c.id)).
		Str("identity", string(ident.ID)).Msg("presence registered")

	// Seed the client's presence view immediately so it does not wait
	// for future presence-changed broadcasts.
	ctl.handleSnapshot(c)
}

func (ctl *SignalWSController) handleSnapshot(c *wsSignalConn) {
	env, err := core.NewEnvelope(core.KindPresenceSnapshot, "", "", core.PresenceSnapshotPayload{
		Entries: ctl.Registry.Snapshot(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("snapshot envelope")
		return
	}
	ctl.sendEnvelope(c, env)
}
