package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/core"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

// presenceEntry binds an identity to its current live connection. One map,
// keyed by identity, is the sole authority for both presence and message
// routing; there is no parallel connection-keyed map to fall out of sync.
type presenceEntry struct {
	DisplayName string
	ConnID      core.ConnID
	Conn        core.SignalConnection
	Online      bool
	LastSeen    time.Time
}

// Registry is the authoritative identity → connection mapping. A later
// register for the same identity supersedes the earlier one
// (last-register-wins); an unregister for a superseded connection is a
// no-op, so an out-of-order close notification never marks a reconnected
// user offline.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.IdentityID]*presenceEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.IdentityID]*presenceEntry)}
}

// Register binds identity to conn and broadcasts presence-changed to all
// other online identities. It returns the superseded connection, if any;
// the caller must not close it (the old transport may still deliver a
// late unregister, which will no-op).
func (r *Registry) Register(id domain.IdentityID, displayName string, connID core.ConnID, conn core.SignalConnection) (superseded core.SignalConnection) {
	r.mu.Lock()
	prev, existed := r.entries[id]
	r.entries[id] = &presenceEntry{
		DisplayName: displayName,
		ConnID:      connID,
		Conn:        conn,
		Online:      true,
		LastSeen:    time.Now(),
	}
	r.mu.Unlock()

	if existed && prev.Online && prev.ConnID != connID {
		superseded = prev.Conn
		log.Info().Str("module", "app.registry").Str("identity", string(id)).
			Str("old_conn", string(prev.ConnID)).Str("new_conn", string(connID)).
			Msg("registration superseded")
	} else {
		log.Info().Str("module", "app.registry").Str("identity", string(id)).
			Str("conn", string(connID)).Msg("registered")
	}

	// A re-register on the same or a new connection is still announced:
	// repeated registration is idempotent for observers.
	r.broadcastPresence(id, displayName, true)
	return superseded
}

// Unregister handles a connection close. It marks the identity offline
// only when its entry still points at this exact connection; if a newer
// connection has already re-registered, the close is stale and ignored.
func (r *Registry) Unregister(id domain.IdentityID, connID core.ConnID) bool {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok || !entry.Online || entry.ConnID != connID {
		r.mu.Unlock()
		log.Debug().Str("module", "app.registry").Str("identity", string(id)).
			Str("conn", string(connID)).Msg("stale unregister ignored")
		return false
	}
	entry.Online = false
	entry.Conn = nil
	entry.LastSeen = time.Now()
	displayName := entry.DisplayName
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("identity", string(id)).
		Str("conn", string(connID)).Msg("unregistered")
	r.broadcastPresence(id, displayName, false)
	return true
}

// Resolve locates the live connection for an identity. A miss is not an
// error here; callers treat it as "target offline".
func (r *Registry) Resolve(id domain.IdentityID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok || !entry.Online {
		return nil, false
	}
	return entry.Conn, true
}

// CurrentConn reports the connection id the identity is registered under.
func (r *Registry) CurrentConn(id domain.IdentityID) (core.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok || !entry.Online {
		return "", false
	}
	return entry.ConnID, true
}

// Touch refreshes last-seen for an identity's live entry.
func (r *Registry) Touch(id domain.IdentityID) {
	r.mu.Lock()
	if entry, ok := r.entries[id]; ok && entry.Online {
		entry.LastSeen = time.Now()
	}
	r.mu.Unlock()
}

// Snapshot returns the current online identities, used to seed a client's
// presence view right after it registers.
func (r *Registry) Snapshot() []core.PresenceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.PresenceInfo, 0, len(r.entries))
	for id, entry := range r.entries {
		if !entry.Online {
			continue
		}
		out = append(out, core.PresenceInfo{
			Identity:    string(id),
			DisplayName: entry.DisplayName,
			Online:      true,
			LastSeen:    entry.LastSeen.UnixMilli(),
		})
	}
	return out
}

func (r *Registry) broadcastPresence(id domain.IdentityID, displayName string, online bool) {
	env, err := core.NewEnvelope(core.KindPresenceChanged, "", id, core.PresenceChangedPayload{
		Identity:    id,
		DisplayName: displayName,
		Online:      online,
		Timestamp:   time.Now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("presence envelope")
		return
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("presence encode")
		return
	}

	r.mu.RLock()
	targets := make([]core.SignalConnection, 0, len(r.entries))
	for other, entry := range r.entries {
		if other == id || !entry.Online {
			continue
		}
		targets = append(targets, entry.Conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		// Presence updates are droppable under backpressure; the next
		// change or a snapshot request repairs the observer's view.
		_ = conn.TrySend(frame)
	}
}
