// Package security provides the client-side defensive layer of the session
// core: login throttling with escalating lockouts, submission pacing,
// password strength validation, at-rest encryption of persisted records,
// and security audit logging.
//
// # Throttle Guard
//
// The LoginGuard slows down scripted brute-force attempts from the client.
// It is explicitly NOT a security boundary: its records live in local
// storage the end user can clear, so it must always be paired with
// server-side enforcement. Treat every threshold here as UX friction.
//
//	guard, err := security.NewLoginGuard(store, auditor, security.GuardConfig{}, logger)
//	if err != nil {
//	    return err
//	}
//	locked, remaining, err := guard.IsAccountLocked(ctx, email)
//	if err != nil {
//	    return err
//	}
//	if locked {
//	    // Tell the user how long to wait; do not count the attempt
//	}
//
// # Submission Pacing
//
// The RateLimiter paces login and MFA submissions per account identifier
// with a token bucket, independent of the lockout escalation. It bounds
// memory via LRU eviction so a distributed run of identifiers cannot grow
// the table without limit.
//
//	limiter := security.NewRateLimiter(1, 3, logger)
//	defer limiter.Stop()
//	if !limiter.Allow(email) {
//	    // Too many submissions in a burst
//	}
//
// # Audit Logging
//
// The Auditor logs security-relevant session events with account
// identifiers hashed, so logs stay useful without spreading PII.
package security
