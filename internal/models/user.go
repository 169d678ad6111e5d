package models

import (
	"time"
)

// Roles a principal can hold. A record-admin manages the document archive but
// has no user-administration rights.
const (
	RoleAdmin       = "admin"
	RoleRecordAdmin = "record-admin"
	RoleUser        = "user"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Approved          bool // granted by an admin; re-checked on every authenticated request
	Premium           bool
	TOTPEnabled       bool
	TOTPSecretEnc     []byte // AES-GCM encrypted TOTP secret, nil unless enrolled
	TOTPSecretNonce   []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Role              string     // "user", "record-admin", "admin"
	PasswordChangedAt *time.Time // Last password change timestamp for token invalidation
}

// RedirectTarget returns the post-login landing path for the user's role.
func (u *User) RedirectTarget() string {
	switch u.Role {
	case RoleAdmin:
		return "/admin"
	case RoleRecordAdmin:
		return "/records"
	default:
		return "/dashboard"
	}
}
