// Package domain contains entity types without logic, just meta-data.
package domain

import "errors"

const (
	MaxIdentityIDLen  = 64
	MaxDisplayNameLen = 64
)

var (
	ErrIdentityEmpty      = errors.New("identity empty")
	ErrIdentityTooLong    = errors.New("identity too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// IdentityID is the stable, application-level user id. It survives
// reconnects; a transport connection is bound to exactly one IdentityID
// at a time.
type IdentityID string

type Identity struct {
	ID          IdentityID `json:"id"`
	DisplayName string     `json:"display_name"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id IdentityID, displayName string) (*Identity, error) {
	if len(id) == 0 {
		return nil, ErrIdentityEmpty
	}
	if len(id) > MaxIdentityIDLen {
		return nil, ErrIdentityTooLong
	}
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Identity{ID: id, DisplayName: displayName}, nil
}
