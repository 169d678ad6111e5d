package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionState is the lifecycle of a request-scoped session guard.
type SessionState int

const (
	SessionAnonymous SessionState = iota
	SessionAuthenticated
	SessionRevoked
)

func (s SessionState) String() string {
	switch s {
	case SessionAuthenticated:
		return "authenticated"
	case SessionRevoked:
		return "revoked"
	default:
		return "anonymous"
	}
}
