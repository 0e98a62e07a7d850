package core

// Frame is a raw serialized envelope ready for the wire.
type Frame []byte

// ConnID identifies one live transport session. It is ephemeral and
// assigned at upgrade time; a reconnect always produces a new ConnID.
type ConnID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a frame without blocking. It returns an error when
	// the connection is closed or its send buffer is full.
	TrySend(Frame) error
	Close()
}

// PresenceInfo is a read-only registry view for APIs (no transport fields).
type PresenceInfo struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
	LastSeen    int64  `json:"last_seen,omitempty"`
}
