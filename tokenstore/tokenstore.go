// Package tokenstore holds the in-memory credential record for one client
// instance. The record is deliberately not persisted anywhere: keeping
// tokens out of durable storage resists credential scraping if the host
// environment is compromised. The store is a pure state container; network
// calls and persistence belong to its callers.
package tokenstore

import (
	"errors"
	"sync"
	"time"
)

// DefaultExpiryBuffer treats tokens as expired this long before actual
// expiry, avoiding races where a request reaches the server after the
// token has lapsed.
const DefaultExpiryBuffer = 5 * time.Minute

var (
	// ErrInvalidRecord is returned when a partial token record is set.
	// A record is all-or-nothing; partial states are disallowed.
	ErrInvalidRecord = errors.New("token record must have access token, refresh token, and expiry")
)

// Record is the credential state for the current session
type Record struct {
	// AccessToken is the short-lived bearer credential
	AccessToken string

	// RefreshToken is the longer-lived credential used solely to mint
	// new access tokens
	RefreshToken string

	// ExpiresAt is the absolute expiry of AccessToken
	ExpiresAt time.Time
}

// valid reports whether the record is fully populated
func (r Record) valid() bool {
	return r.AccessToken != "" && r.RefreshToken != "" && !r.ExpiresAt.IsZero()
}

// Store is the single source of truth for credential state within one
// client instance. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	record Record
	set    bool
	buffer time.Duration

	// now is the clock, replaceable in tests
	now func() time.Time
}

// New creates a token store with the given expiry buffer.
// A zero or negative buffer uses DefaultExpiryBuffer.
func New(buffer time.Duration) *Store {
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	return &Store{
		buffer: buffer,
		now:    time.Now,
	}
}

// SetTokens atomically replaces the current record.
// Returns ErrInvalidRecord if any field is missing; the existing record
// is untouched on failure.
func (s *Store) SetTokens(record Record) error {
	if !record.valid() {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record
	s.set = true
	return nil
}

// AccessToken returns the current access token, or "" and false if no
// record is present.
func (s *Store) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", false
	}
	return s.record.AccessToken, true
}

// RefreshToken returns the current refresh token, or "" and false if no
// record is present.
func (s *Store) RefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", false
	}
	return s.record.RefreshToken, true
}

// Record returns a copy of the current record and whether one is present
func (s *Store) Record() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.set
}

// IsExpired reports whether the access token should be treated as expired.
// The token is considered expired once now >= expiresAt - buffer, slightly
// before actual expiry. An absent record reports expired.
func (s *Store) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return true
	}
	return !s.now().Before(s.record.ExpiresAt.Add(-s.buffer))
}

// Clear wipes the record. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = Record{}
	s.set = false
}
