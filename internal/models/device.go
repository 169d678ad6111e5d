package models

import "time"

// DeviceSignals are the client-presented hints a fingerprint is derived from.
// None of them is a stable identifier; the fingerprint is best-effort only.
type DeviceSignals struct {
	UserAgent string
	Platform  string
	Location  string // coarse, network-derived (e.g. "Utrecht, NL")
}

// DeviceRecord marks a (user, fingerprint) pair as previously seen. Records
// are written once and never mutated; expiry is left to the surrounding
// system.
type DeviceRecord struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Fingerprint string    `db:"fingerprint"`
	FirstSeenAt time.Time `db:"first_seen_at"`
}
