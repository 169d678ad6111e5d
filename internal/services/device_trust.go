package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/dockeep/dockeep/internal/models"
)

// DeviceTrustStore tracks which (user, fingerprint) pairs have been seen
// before. Remember is idempotent; IsKnown for a user with no recorded devices
// returns false, which forces a new-device alert on the first-ever login.
type DeviceTrustStore interface {
	IsKnown(ctx context.Context, userID, fingerprint string) (bool, error)
	Remember(ctx context.Context, userID, fingerprint string) error
}

// DeviceFingerprint hashes the client-presented signals into an opaque device
// identifier. The signals are spoofable, so the fingerprint is best-effort
// only and never treated as proof of identity.
func DeviceFingerprint(signals models.DeviceSignals) string {
	data := []byte(fmt.Sprintf("%s:%s:%s", signals.UserAgent, signals.Platform, signals.Location))
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:32]
}

// MemoryDeviceTrustStore keeps seen pairs in a map. Suitable for tests and
// single-node deployments; production uses the Postgres-backed repository.
type MemoryDeviceTrustStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryDeviceTrustStore() *MemoryDeviceTrustStore {
	return &MemoryDeviceTrustStore{seen: make(map[string]struct{})}
}

func (s *MemoryDeviceTrustStore) IsKnown(ctx context.Context, userID, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[userID+"|"+fingerprint]
	return ok, nil
}

func (s *MemoryDeviceTrustStore) Remember(ctx context.Context, userID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[userID+"|"+fingerprint] = struct{}{}
	return nil
}
