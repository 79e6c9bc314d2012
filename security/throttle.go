package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/God-Lion/seeker-authcore/storage"
)

// Default throttle guard settings.
const (
	// DefaultCaptchaThreshold is the failed-attempt count past which a
	// captcha is required until the record resets.
	DefaultCaptchaThreshold = 3

	// DefaultAlertThreshold is the failed-attempt count past which the
	// one-shot security alert fires.
	DefaultAlertThreshold = 5

	// DefaultResetWindow is how long after the last failed attempt the
	// counter starts fresh.
	DefaultResetWindow = 30 * time.Minute
)

// DefaultLockoutThresholds are the ascending failed-attempt counts that
// trigger a lockout.
var DefaultLockoutThresholds = []int{3, 5, 10}

// DefaultLockoutDurations are the lockout lengths per escalation level.
var DefaultLockoutDurations = []time.Duration{
	15 * time.Minute,
	60 * time.Minute,
	1440 * time.Minute,
}

// GuardConfig configures the login throttle guard.
type GuardConfig struct {
	// LockoutThresholds are the ascending failed-attempt counts that
	// trigger a lockout. Default: DefaultLockoutThresholds
	LockoutThresholds []int

	// LockoutDurations are the lockout lengths per threshold level.
	// Must match LockoutThresholds in length. Default: DefaultLockoutDurations
	LockoutDurations []time.Duration

	// CaptchaThreshold is the failed-attempt count past which a captcha
	// is required. Default: DefaultCaptchaThreshold
	CaptchaThreshold int

	// AlertThreshold is the failed-attempt count past which the one-shot
	// security alert fires. Default: DefaultAlertThreshold
	AlertThreshold int

	// ResetWindow is how long after the last attempt counters reset.
	// Default: DefaultResetWindow
	ResetWindow time.Duration
}

// AttemptState describes the throttle state after a recorded attempt or a
// lock check.
type AttemptState struct {
	// Attempts is the current consecutive failed-attempt count.
	Attempts int

	// Locked reports whether the account is currently locked out.
	Locked bool

	// Remaining is how long the current lockout still has to run.
	// Zero when not locked.
	Remaining time.Duration

	// LockoutLevel is the escalation level of the current lockout.
	// Zero when the record has never locked.
	LockoutLevel int

	// RequiresCaptcha reports whether further attempts need a captcha.
	RequiresCaptcha bool
}

// LoginGuard tracks failed login attempts per account identifier and applies
// escalating lockouts. It slows down scripted brute-force attempts from the
// client and is explicitly NOT a security boundary: records live in storage
// the end user controls, so server-side enforcement must exist in parallel.
type LoginGuard struct {
	store   storage.RecordStore
	auditor *Auditor
	config  GuardConfig
	logger  *slog.Logger

	// mu serializes read-modify-write cycles against the record store so
	// two concurrent failed attempts for the same identifier cannot both
	// observe the same attempt count.
	mu sync.Mutex

	// now is replaceable for tests.
	now func() time.Time
}

// NewLoginGuard creates a login throttle guard. Zero config fields are
// filled with defaults. Mismatched threshold and duration tables are an
// error.
func NewLoginGuard(store storage.RecordStore, auditor *Auditor, config GuardConfig, logger *slog.Logger) (*LoginGuard, error) {
	if store == nil {
		return nil, errors.New("login guard: record store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.LockoutThresholds) == 0 {
		config.LockoutThresholds = DefaultLockoutThresholds
		config.LockoutDurations = DefaultLockoutDurations
	}
	if len(config.LockoutThresholds) != len(config.LockoutDurations) {
		return nil, fmt.Errorf("login guard: %d thresholds but %d durations",
			len(config.LockoutThresholds), len(config.LockoutDurations))
	}
	for i := 1; i < len(config.LockoutThresholds); i++ {
		if config.LockoutThresholds[i] <= config.LockoutThresholds[i-1] {
			return nil, errors.New("login guard: lockout thresholds must be strictly ascending")
		}
	}
	if config.CaptchaThreshold <= 0 {
		config.CaptchaThreshold = DefaultCaptchaThreshold
	}
	if config.AlertThreshold <= 0 {
		config.AlertThreshold = DefaultAlertThreshold
	}
	if config.ResetWindow <= 0 {
		config.ResetWindow = DefaultResetWindow
	}

	return &LoginGuard{
		store:   store,
		auditor: auditor,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// RecordFailedAttempt records a failed login for the identifier and returns
// the resulting throttle state.
//
// While the account is locked the attempt is rejected without mutating the
// record; the returned state carries the remaining lockout duration. When
// the reset window has elapsed since the last attempt, counters reset before
// the new attempt is counted. Reaching a lockout threshold sets LockedUntil
// to now plus the duration for that escalation level.
func (g *LoginGuard) RecordFailedAttempt(ctx context.Context, identifier string) (AttemptState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	record, err := g.loadOrCreate(ctx, identifier)
	if err != nil {
		return AttemptState{}, err
	}

	// Locked: reject without counting.
	if remaining := record.LockedUntil.Sub(now); !record.LockedUntil.IsZero() && remaining > 0 {
		g.auditor.LogEvent(Event{
			Type:       EventLockedAttemptRejected,
			Identifier: identifier,
		})
		return AttemptState{
			Attempts:        record.Attempts,
			Locked:          true,
			Remaining:       remaining,
			LockoutLevel:    record.LockoutLevel,
			RequiresCaptcha: record.RequiresCaptcha,
		}, nil
	}

	// A stale record starts over.
	if !record.LastAttemptAt.IsZero() && now.Sub(record.LastAttemptAt) > g.config.ResetWindow {
		g.resetCounters(record)
	}

	record.Attempts++
	record.LastAttemptAt = now
	record.LockedUntil = time.Time{}
	g.auditor.LogLoginFailed(identifier, record.Attempts)

	for i, threshold := range g.config.LockoutThresholds {
		if record.Attempts == threshold {
			duration := g.config.LockoutDurations[i]
			record.LockedUntil = now.Add(duration)
			record.LockoutLevel = i + 1
			g.auditor.LogAccountLocked(identifier, record.LockoutLevel, duration)
			g.logger.Warn("Account locked after repeated failures",
				"attempts", record.Attempts,
				"level", record.LockoutLevel,
				"duration", duration)
			break
		}
	}

	if record.Attempts >= g.config.CaptchaThreshold {
		record.RequiresCaptcha = true
	}
	if record.Attempts >= g.config.AlertThreshold && !record.AlertSent {
		record.AlertSent = true
		g.auditor.LogBruteForceAlert(identifier, record.Attempts)
	}

	if err := g.store.SaveRecord(ctx, record); err != nil {
		return AttemptState{}, fmt.Errorf("login guard: save record: %w", err)
	}

	state := AttemptState{
		Attempts:        record.Attempts,
		LockoutLevel:    record.LockoutLevel,
		RequiresCaptcha: record.RequiresCaptcha,
	}
	if !record.LockedUntil.IsZero() {
		state.Locked = true
		state.Remaining = record.LockedUntil.Sub(now)
	}
	return state, nil
}

// RecordSuccessfulLogin resets the identifier's record to defaults
// unconditionally.
func (g *LoginGuard) RecordSuccessfulLogin(ctx context.Context, identifier string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.DeleteRecord(ctx, identifier); err != nil {
		return fmt.Errorf("login guard: reset record: %w", err)
	}
	return nil
}

// IsAccountLocked reports whether the identifier is currently locked out and
// how long the lockout has left. It never mutates the record.
func (g *LoginGuard) IsAccountLocked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	record, err := g.store.GetRecord(ctx, identifier)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("login guard: load record: %w", err)
	}

	remaining := record.LockedUntil.Sub(g.now())
	if record.LockedUntil.IsZero() || remaining <= 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

// RequiresCaptcha reports whether further attempts for the identifier must
// carry a captcha token.
func (g *LoginGuard) RequiresCaptcha(ctx context.Context, identifier string) (bool, error) {
	record, err := g.store.GetRecord(ctx, identifier)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("login guard: load record: %w", err)
	}
	return record.RequiresCaptcha, nil
}

func (g *LoginGuard) loadOrCreate(ctx context.Context, identifier string) (*storage.LoginSecurityRecord, error) {
	record, err := g.store.GetRecord(ctx, identifier)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return &storage.LoginSecurityRecord{Identifier: identifier}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("login guard: load record: %w", err)
	}
	return record, nil
}

func (g *LoginGuard) resetCounters(record *storage.LoginSecurityRecord) {
	record.Attempts = 0
	record.LockedUntil = time.Time{}
	record.LockoutLevel = 0
	record.RequiresCaptcha = false
	record.AlertSent = false
}
