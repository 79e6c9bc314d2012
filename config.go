package authcore

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Default configuration values
const (
	// DefaultExpiryBuffer treats access tokens as expired this long before
	// their actual expiry, so a request cannot reach the server with a
	// token that lapses in flight.
	DefaultExpiryBuffer = 5 * time.Minute

	// DefaultRefreshTimeout bounds the refresh network call. It is kept
	// shorter than typical request timeouts so a hung refresh does not
	// stall every queued request indefinitely.
	DefaultRefreshTimeout = 10 * time.Second

	// DefaultMaxRetries is the retry budget for transient failures
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the base for exponential backoff (base * 2^attempt)
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultSignInRoute is where forced sign-outs resolve to
	DefaultSignInRoute = "/login"
)

// Config holds the session core configuration.
// Structured using composition for better organization and maintainability.
// All options are enumerated and named; there is no pass-through of
// arbitrary per-request settings.
type Config struct {
	// Token holds token expiry handling settings
	Token TokenConfig

	// Refresh holds refresh coordination settings
	Refresh RefreshConfig

	// Retry holds transient-failure retry settings
	Retry RetryConfig

	// Throttle holds client-side brute-force throttling settings
	Throttle ThrottleConfig

	// Pacing holds login/MFA submission rate limiting settings
	Pacing PacingConfig

	// SignInRoute is the route forced sign-outs redirect to.
	// Default: "/login"
	SignInRoute string

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is the base HTTP client the interceptor chain wraps.
	// If not provided, a client with sane timeouts is used.
	HTTPClient *http.Client
}

// TokenConfig holds token expiry handling settings
type TokenConfig struct {
	// ExpiryBuffer treats tokens as expired this long before actual expiry.
	// Default: 5 minutes
	ExpiryBuffer time.Duration
}

// RefreshConfig holds refresh coordination settings
type RefreshConfig struct {
	// Timeout bounds the refresh network call. Timeout is treated as
	// refresh failure (terminal for the session).
	// Default: 10 seconds
	Timeout time.Duration
}

// RetryConfig holds transient-failure retry settings
type RetryConfig struct {
	// MaxAttempts is the maximum number of retries after the initial
	// attempt. Default: 3
	MaxAttempts int

	// BaseDelay is the backoff base; attempt n waits BaseDelay * 2^n.
	// Default: 500ms
	BaseDelay time.Duration

	// RetryableStatuses lists response codes retried with backoff.
	// A 401 always follows the refresh-and-replay path instead, even if
	// listed here. Default: 408, 429, 502, 503, 504
	RetryableStatuses []int
}

// ThrottleConfig holds client-side brute-force throttling settings.
// This is UX friction only; server-side enforcement is authoritative.
type ThrottleConfig struct {
	// LockoutThresholds are the ascending failed-attempt counts that
	// trigger a lockout. Default: 3, 5, 10
	LockoutThresholds []int

	// LockoutDurations are the lockout lengths per threshold level.
	// Must match LockoutThresholds in length. Default: 15m, 60m, 1440m
	LockoutDurations []time.Duration

	// CaptchaThreshold is the failed-attempt count past which a captcha
	// is required until reset. Default: 3
	CaptchaThreshold int

	// AlertThreshold is the failed-attempt count past which a one-shot
	// security alert fires. Default: 5
	AlertThreshold int

	// ResetWindow is how long after the last attempt counters reset.
	// Default: 30 minutes
	ResetWindow time.Duration
}

// PacingConfig holds login/MFA submission rate limiting settings
type PacingConfig struct {
	// Rate is submissions per second allowed per account identifier.
	// Zero disables pacing.
	Rate int

	// Burst is the maximum burst size per identifier.
	Burst int
}

// DefaultConfig returns a Config populated with documented defaults
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			ExpiryBuffer: DefaultExpiryBuffer,
		},
		Refresh: RefreshConfig{
			Timeout: DefaultRefreshTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts:       DefaultMaxRetries,
			BaseDelay:         DefaultRetryBaseDelay,
			RetryableStatuses: []int{408, 429, 502, 503, 504},
		},
		Throttle: ThrottleConfig{
			LockoutThresholds: []int{3, 5, 10},
			LockoutDurations:  []time.Duration{15 * time.Minute, 60 * time.Minute, 1440 * time.Minute},
			CaptchaThreshold:  3,
			AlertThreshold:    5,
			ResetWindow:       30 * time.Minute,
		},
		Pacing: PacingConfig{
			Rate:  1,
			Burst: 3,
		},
		SignInRoute: DefaultSignInRoute,
	}
}

// Validate checks the configuration for invalid values.
// Zero values are filled with defaults rather than rejected; genuinely
// inconsistent settings are errors.
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	if c.Token.ExpiryBuffer < 0 {
		return fmt.Errorf("token expiry buffer must not be negative")
	}
	if c.Token.ExpiryBuffer == 0 {
		c.Token.ExpiryBuffer = defaults.Token.ExpiryBuffer
	}

	if c.Refresh.Timeout < 0 {
		return fmt.Errorf("refresh timeout must not be negative")
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = defaults.Refresh.Timeout
	}

	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative")
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry base delay must not be negative")
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if len(c.Retry.RetryableStatuses) == 0 {
		c.Retry.RetryableStatuses = defaults.Retry.RetryableStatuses
	}
	for _, status := range c.Retry.RetryableStatuses {
		if status < 100 || status > 599 {
			return fmt.Errorf("retryable status %d is not a valid HTTP status", status)
		}
	}

	if len(c.Throttle.LockoutThresholds) == 0 {
		c.Throttle.LockoutThresholds = defaults.Throttle.LockoutThresholds
		c.Throttle.LockoutDurations = defaults.Throttle.LockoutDurations
	}
	if len(c.Throttle.LockoutThresholds) != len(c.Throttle.LockoutDurations) {
		return fmt.Errorf("lockout thresholds (%d) and durations (%d) must match in length",
			len(c.Throttle.LockoutThresholds), len(c.Throttle.LockoutDurations))
	}
	for i := 1; i < len(c.Throttle.LockoutThresholds); i++ {
		if c.Throttle.LockoutThresholds[i] <= c.Throttle.LockoutThresholds[i-1] {
			return fmt.Errorf("lockout thresholds must be strictly ascending")
		}
	}
	if c.Throttle.CaptchaThreshold == 0 {
		c.Throttle.CaptchaThreshold = defaults.Throttle.CaptchaThreshold
	}
	if c.Throttle.AlertThreshold == 0 {
		c.Throttle.AlertThreshold = defaults.Throttle.AlertThreshold
	}
	if c.Throttle.ResetWindow < 0 {
		return fmt.Errorf("throttle reset window must not be negative")
	}
	if c.Throttle.ResetWindow == 0 {
		c.Throttle.ResetWindow = defaults.Throttle.ResetWindow
	}

	if c.Pacing.Rate < 0 || c.Pacing.Burst < 0 {
		return fmt.Errorf("pacing rate and burst must not be negative")
	}

	if c.SignInRoute == "" {
		c.SignInRoute = defaults.SignInRoute
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}
