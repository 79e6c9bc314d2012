package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Login lifecycle events

	// EventLoginSucceeded is logged when a login completes and counters reset
	EventLoginSucceeded = "login_succeeded"

	// EventLoginFailed is logged on a failed login attempt
	EventLoginFailed = "login_failed"

	// EventAccountLocked is logged when failed attempts cross a lockout threshold
	EventAccountLocked = "account_locked"

	// EventLockedAttemptRejected is logged when an attempt arrives during an
	// active lockout (the attempt does not advance counters)
	EventLockedAttemptRejected = "locked_attempt_rejected"

	// EventCaptchaRequired is logged when the captcha threshold is crossed
	EventCaptchaRequired = "captcha_required"

	// EventBruteForceAlert is the one-shot alert past the alert threshold.
	// Guarded per identifier so repeated failures do not re-fire it.
	EventBruteForceAlert = "brute_force_alert"

	// EventMFAVerified is logged when MFA verification completes a login
	EventMFAVerified = "mfa_verified"

	// Token lifecycle events

	// EventTokenRefreshed is logged when the access token is refreshed
	EventTokenRefreshed = "token_refreshed"

	// EventRefreshFailed is logged when a refresh fails terminally
	EventRefreshFailed = "refresh_failed"

	// EventForcedSignOut is logged when the session is terminated by a
	// refresh failure or an exhausted 401 replay
	EventForcedSignOut = "forced_sign_out"

	// EventSignOut is logged on a user-initiated sign-out
	EventSignOut = "sign_out"

	// Cross-instance events

	// EventSyncSignOutReceived is logged when a sign-out broadcast from a
	// sibling instance is applied locally
	EventSyncSignOutReceived = "sync_sign_out_received"

	// EventRateLimitExceeded is logged when submission pacing rejects an attempt
	EventRateLimitExceeded = "rate_limit_exceeded"
)
