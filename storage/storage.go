// Package storage defines interfaces for persisting client-side session state.
// Implementations must be safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when no record exists for the given identifier.
var ErrRecordNotFound = errors.New("storage: record not found")

// LoginSecurityRecord tracks failed login attempts and lockout state for a
// single account identifier. Records are advisory client-side state and never
// a substitute for server enforcement.
type LoginSecurityRecord struct {
	// Identifier is the account the record belongs to, typically an email.
	Identifier string `json:"identifier"`

	// Attempts counts consecutive failed login attempts since the last
	// success or reset-window expiry.
	Attempts int `json:"attempts"`

	// LastAttemptAt is when the most recent failed attempt was recorded.
	LastAttemptAt time.Time `json:"last_attempt_at"`

	// LockedUntil is when the current lockout expires. Zero when not locked.
	LockedUntil time.Time `json:"locked_until,omitempty"`

	// LockoutLevel indexes into the escalation table. It increments each
	// time a new lockout is applied and never decreases within a record's
	// lifetime.
	LockoutLevel int `json:"lockout_level"`

	// RequiresCaptcha is set once the attempt count passes the captcha
	// threshold and stays set until the record is reset.
	RequiresCaptcha bool `json:"requires_captcha"`

	// AlertSent marks that the one-shot suspicious-activity alert has been
	// emitted for this record.
	AlertSent bool `json:"alert_sent"`
}

// Clone returns a deep copy of the record.
func (r *LoginSecurityRecord) Clone() *LoginSecurityRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// RecordStore persists login security records and small pieces of session
// state that must survive process restarts.
type RecordStore interface {
	// SaveRecord stores the record, replacing any existing record for the
	// same identifier.
	SaveRecord(ctx context.Context, record *LoginSecurityRecord) error

	// GetRecord returns the record for the identifier, or ErrRecordNotFound.
	GetRecord(ctx context.Context, identifier string) (*LoginSecurityRecord, error)

	// DeleteRecord removes the record for the identifier. Deleting a missing
	// record is not an error.
	DeleteRecord(ctx context.Context, identifier string) error

	// SaveRedirectPath stores the path to return to after the next login.
	SaveRedirectPath(ctx context.Context, path string) error

	// ConsumeRedirectPath returns the stored redirect path and clears it.
	// Returns an empty string when none is set.
	ConsumeRedirectPath(ctx context.Context) (string, error)
}
