package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication outcomes surfaced to the caller.
	// ErrInvalidCredentials deliberately does not distinguish an unknown
	// email from a wrong password to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many failed login attempts")
	ErrPendingApproval    = errors.New("account pending approval")

	// ErrNotificationDelivery is internal only: the notifier logs and
	// absorbs it, it never reaches a login caller.
	ErrNotificationDelivery = errors.New("notification delivery failed")
)
