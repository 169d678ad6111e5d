package models

import "time"

// LoginAttempt is one row of the persistent attempt audit trail. The live
// lockout decision is made against the in-memory rate-limit store; these rows
// exist for after-the-fact review and are purged once ExpiresAt passes.
type LoginAttempt struct {
	ID                string    `db:"id"`
	Email             string    `db:"email"`
	IPAddress         string    `db:"ip_address"`
	UserAgent         string    `db:"user_agent"`
	AttemptTime       time.Time `db:"attempt_time"`
	Success           bool      `db:"success"`
	FailureReason     *string   `db:"failure_reason"`
	DeviceFingerprint string    `db:"device_fingerprint"`
	ExpiresAt         time.Time `db:"expires_at"`
}

// AttemptKey buckets rate-limit counters and lockout notifications. Locking
// one email from one origin must not lock it globally, so both parts are
// always present.
type AttemptKey struct {
	Email  string
	Origin string
}

// String renders the key in the canonical "email|origin" form used by the
// rate-limit store.
func (k AttemptKey) String() string {
	return k.Email + "|" + k.Origin
}
