package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
// Account identifiers are hashed before they reach the log stream.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type       string
	Identifier string // account identifier (hashed on output)
	InstanceID string // originating client instance, if relevant
	Details    map[string]any
	Timestamp  time.Time
}

// LogEvent logs a security event with hashed PII.
// A nil Auditor is a no-op.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"identifier_hash", hashForLogging(event.Identifier),
		"instance_id", event.InstanceID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginFailed logs a failed login attempt
func (a *Auditor) LogLoginFailed(identifier string, attempts int) {
	a.LogEvent(Event{
		Type:       EventLoginFailed,
		Identifier: identifier,
		Details: map[string]any{
			"attempts": attempts,
		},
	})
}

// LogAccountLocked logs a lockout escalation
func (a *Auditor) LogAccountLocked(identifier string, level int, duration time.Duration) {
	a.LogEvent(Event{
		Type:       EventAccountLocked,
		Identifier: identifier,
		Details: map[string]any{
			"lockout_level": level,
			"duration":      duration.String(),
		},
	})
}

// LogBruteForceAlert logs the one-shot alert for sustained failures
func (a *Auditor) LogBruteForceAlert(identifier string, attempts int) {
	a.LogEvent(Event{
		Type:       EventBruteForceAlert,
		Identifier: identifier,
		Details: map[string]any{
			"attempts": attempts,
		},
	})
}

// LogTokenRefreshed logs a successful token refresh
func (a *Auditor) LogTokenRefreshed(instanceID string) {
	a.LogEvent(Event{
		Type:       EventTokenRefreshed,
		InstanceID: instanceID,
	})
}

// LogForcedSignOut logs a session termination with its reason
func (a *Auditor) LogForcedSignOut(instanceID, reason string) {
	a.LogEvent(Event{
		Type:       EventForcedSignOut,
		InstanceID: instanceID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogSyncSignOutReceived logs a sign-out applied from a sibling instance
func (a *Auditor) LogSyncSignOutReceived(instanceID, senderID string) {
	a.LogEvent(Event{
		Type:       EventSyncSignOutReceived,
		InstanceID: instanceID,
		Details: map[string]any{
			"sender_id": senderID,
		},
	})
}

// LogRateLimitExceeded logs a submission pacing rejection
func (a *Auditor) LogRateLimitExceeded(identifier string) {
	a.LogEvent(Event{
		Type:       EventRateLimitExceeded,
		Identifier: identifier,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
