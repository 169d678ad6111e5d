package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// csrfTokenEntry stores token metadata
type csrfTokenEntry struct {
	userID string
	expiry time.Time
}

// CSRFTokenManager handles anti-forgery token generation and validation.
// Tokens are bound to a user; revoking a session rotates them by dropping
// every token the user holds.
type CSRFTokenManager struct {
	validTokens map[string]*csrfTokenEntry
	mu          sync.RWMutex
	tokenTTL    time.Duration
}

// NewCSRFTokenManager creates a new CSRF token manager. ttl should match the
// lifetime of the refresh cookie the tokens gate; a shorter ttl strands
// browser sessions whose refresh token is still valid.
func NewCSRFTokenManager(ttl time.Duration) *CSRFTokenManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	manager := &CSRFTokenManager{
		validTokens: make(map[string]*csrfTokenEntry),
		tokenTTL:    ttl,
	}

	go manager.cleanupExpiredTokens()

	return manager
}

// GenerateToken creates a new CSRF token for a specific user
func (m *CSRFTokenManager) GenerateToken(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", err
	}

	token := hex.EncodeToString(randomBytes)
	m.validTokens[token] = &csrfTokenEntry{
		userID: userID,
		expiry: time.Now().Add(m.tokenTTL),
	}

	return token, nil
}

// ValidateToken checks if a CSRF token is valid and belongs to the user
func (m *CSRFTokenManager) ValidateToken(token, userID string) bool {
	m.mu.RLock()
	entry, exists := m.validTokens[token]
	m.mu.RUnlock()

	if !exists {
		return false
	}

	if entry.userID != userID {
		return false
	}

	if time.Now().After(entry.expiry) {
		m.mu.Lock()
		delete(m.validTokens, token)
		m.mu.Unlock()
		return false
	}

	return true
}

// IsKnown reports whether a token is live, regardless of which user holds it.
// The refresh boundary checks this before the refresh token has been parsed,
// when the user is not yet known.
func (m *CSRFTokenManager) IsKnown(token string) bool {
	m.mu.RLock()
	entry, exists := m.validTokens[token]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	return !time.Now().After(entry.expiry)
}

// RevokeToken invalidates a single CSRF token (used after a state-changing
// request)
func (m *CSRFTokenManager) RevokeToken(token string) {
	m.mu.Lock()
	delete(m.validTokens, token)
	m.mu.Unlock()
}

// RotateUserTokens invalidates every CSRF token held by a user. The session
// guard calls this when it revokes a session so a stale page cannot replay an
// old token.
func (m *CSRFTokenManager) RotateUserTokens(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, entry := range m.validTokens {
		if entry.userID == userID {
			delete(m.validTokens, token)
		}
	}
}

// cleanupExpiredTokens periodically removes expired tokens
func (m *CSRFTokenManager) cleanupExpiredTokens() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for token, entry := range m.validTokens {
			if now.After(entry.expiry) {
				delete(m.validTokens, token)
			}
		}
		m.mu.Unlock()
	}
}
