package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/God-Lion/seeker-authcore/refresh"
	"github.com/God-Lion/seeker-authcore/transport"
)

// Error codes for session failures as constants
const (
	ErrorCodeInvalidTokenRecord = "invalid_token_record"
	ErrorCodeRefreshFailed      = "refresh_failed"
	ErrorCodeTransientNetwork   = "transient_network_error"
	ErrorCodeAuthExpired        = "authorization_expired"
	ErrorCodeAccountLocked      = "account_locked"
	ErrorCodeRateLimited        = "rate_limited"
	ErrorCodeCaptchaRequired    = "captcha_required"
)

// Sentinel errors
var (
	// ErrNoRefreshToken indicates a refresh was attempted without a
	// refresh token on hand. Matched with errors.Is against any error
	// surfaced by AuthClient requests.
	ErrNoRefreshToken = refresh.ErrNoRefreshToken

	// ErrMFARequired indicates a login is pending MFA verification
	ErrMFARequired = errors.New("multi-factor verification required")
)

// AuthError represents a session-core failure surfaced to callers
type AuthError struct {
	Code        string // Error code (e.g., "refresh_failed", "account_locked")
	Description string // Human-readable error description
	Status      int    // HTTP status code associated with the failure, if any
	Retryable   bool   // Whether the operation may be retried

	// RetryAfter carries the remaining lockout duration for account_locked
	// errors, zero otherwise.
	RetryAfter time.Duration

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the underlying cause
func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a new session error
func NewAuthError(code, description string, status int) *AuthError {
	return &AuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common session errors as reusable constructors
var (
	// ErrInvalidTokenRecord indicates a partial token record was rejected.
	// This is a programmer error; it is never retried.
	ErrInvalidTokenRecord = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidTokenRecord, desc, 0)
	}

	// ErrRefreshFailed indicates the refresh call failed or the server
	// rejected the refresh token. Terminal for the current session.
	ErrRefreshFailed = func(desc string, cause error) *AuthError {
		err := NewAuthError(ErrorCodeRefreshFailed, desc, http.StatusUnauthorized)
		err.Err = cause
		return err
	}

	// ErrTransientNetwork indicates a retryable transport failure whose
	// retry budget has been exhausted.
	ErrTransientNetwork = func(desc string, cause error) *AuthError {
		err := NewAuthError(ErrorCodeTransientNetwork, desc, 0)
		err.Err = cause
		err.Retryable = true
		return err
	}

	// ErrAuthorizationExpired indicates a request was rejected with 401
	// after its single refresh-and-replay attempt.
	ErrAuthorizationExpired = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeAuthExpired, desc, http.StatusUnauthorized)
	}

	// ErrAccountLocked indicates the throttle guard rejected a login
	// attempt. Never escalates to sign-out.
	ErrAccountLocked = func(remaining time.Duration) *AuthError {
		err := NewAuthError(ErrorCodeAccountLocked,
			fmt.Sprintf("account locked, try again in %s", FormatRemaining(remaining)),
			http.StatusTooManyRequests)
		err.RetryAfter = remaining
		return err
	}

	// ErrRateLimited indicates login pacing rejected a submission
	ErrRateLimited = func(desc string) *AuthError {
		err := NewAuthError(ErrorCodeRateLimited, desc, http.StatusTooManyRequests)
		err.Retryable = true
		return err
	}
)

// AsAuthError classifies any error surfaced by the session core into the
// error taxonomy, so callers can branch on Code and Retryable without
// knowing which pipeline stage produced the failure. Errors from
// AuthClient requests arrive wrapped in *url.Error; the classification
// unwraps them. Returns nil for errors that did not originate here.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	switch {
	case errors.Is(err, transport.ErrAuthorizationExpired):
		e := ErrAuthorizationExpired("session expired, sign in again")
		e.Err = err
		return e
	case errors.Is(err, refresh.ErrNoRefreshToken), errors.Is(err, refresh.ErrRefreshFailed):
		return ErrRefreshFailed("session refresh failed", err)
	case errors.Is(err, transport.ErrRetryBudgetExhausted):
		return ErrTransientNetwork("request failed after exhausting retries", err)
	}
	return nil
}

// FormatRemaining renders a lockout duration for user-facing messages,
// rounding up so a 59m30s remainder reads as "60 minutes" rather than "59".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0 minutes"
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
