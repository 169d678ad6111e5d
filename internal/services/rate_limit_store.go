package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dockeep/dockeep/internal/models"
)

// RateLimitStore tracks failed-attempt counters per (email, origin) key over
// fixed windows. RecordAttempt returns the post-increment count so callers can
// gate threshold-crossing side effects on the value they observed rather than
// on a separate read.
type RateLimitStore interface {
	RecordAttempt(key models.AttemptKey) int
	Attempts(key models.AttemptKey) int
	TooMany(key models.AttemptKey, max int) bool
	Reset(key models.AttemptKey)
}

// LockoutConfig holds the lockout thresholds handed to the login service.
// AttemptRetention controls how long audit-trail rows stay queryable before
// the cleanup loop removes them.
type LockoutConfig struct {
	MaxAttempts      int
	WindowDuration   time.Duration
	AttemptRetention time.Duration
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// MemoryRateLimitStore is a mutex-guarded keyed counter map. Windows are
// fixed-size: an entry whose window has elapsed behaves as absent and the next
// increment starts a fresh window at 1.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewMemoryRateLimitStore creates a rate-limit store with the given window.
func NewMemoryRateLimitStore(window time.Duration, logger *slog.Logger) *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		entries: make(map[string]*rateLimitEntry),
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the store's time source. Tests use this to step through
// window expiry without sleeping.
func (s *MemoryRateLimitStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RecordAttempt increments the counter for key and returns the new count.
// Concurrent increments for the same key are serialized by the store lock, so
// no update is lost and exactly one caller observes each count value.
func (s *MemoryRateLimitStore) RecordAttempt(key models.AttemptKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	now := s.now()

	entry, ok := s.entries[k]
	if !ok || s.expired(entry, now) {
		entry = &rateLimitEntry{windowStart: now}
		s.entries[k] = entry
	}

	entry.count++
	return entry.count
}

// Attempts returns the current count for key, treating absent and expired
// entries as zero.
func (s *MemoryRateLimitStore) Attempts(key models.AttemptKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key.String()]
	if !ok || s.expired(entry, s.now()) {
		return 0
	}
	return entry.count
}

// TooMany reports whether the count for key has reached max.
func (s *MemoryRateLimitStore) TooMany(key models.AttemptKey, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key.String()]
	if !ok || s.expired(entry, s.now()) {
		return false
	}
	return entry.count >= max
}

// Reset clears the counter for key, e.g. after a successful login.
func (s *MemoryRateLimitStore) Reset(key models.AttemptKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
}

// Prune drops expired entries so the map does not grow unbounded under a
// credential-stuffing run. The background cleanup manager calls this.
func (s *MemoryRateLimitStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, k)
			removed++
		}
	}

	if removed > 0 && s.logger != nil {
		s.logger.Debug("pruned expired rate limit entries", slog.Int("removed", removed))
	}
	return removed
}

func (s *MemoryRateLimitStore) expired(entry *rateLimitEntry, now time.Time) bool {
	return !now.Before(entry.windowStart.Add(s.window))
}
