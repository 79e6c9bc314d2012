package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/God-Lion/seeker-authcore/refresh"
	"github.com/God-Lion/seeker-authcore/transport"
)

func TestAuthErrorFormat(t *testing.T) {
	err := NewAuthError(ErrorCodeRefreshFailed, "issuer rejected refresh", http.StatusUnauthorized)
	if got := err.Error(); got != "refresh_failed: issuer rejected refresh" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("connection reset")
	err.Err = cause
	if got := err.Error(); !strings.Contains(got, "connection reset") {
		t.Errorf("Error() with cause = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is failed to find wrapped cause")
	}
}

func TestErrAccountLocked(t *testing.T) {
	err := ErrAccountLocked(59*time.Minute + 30*time.Second)

	if err.Code != ErrorCodeAccountLocked {
		t.Errorf("Code = %q", err.Code)
	}
	if err.RetryAfter != 59*time.Minute+30*time.Second {
		t.Errorf("RetryAfter = %v", err.RetryAfter)
	}
	// Rounded up for the user-facing message.
	if !strings.Contains(err.Description, "60 minutes") {
		t.Errorf("Description = %q, want rounded-up remaining", err.Description)
	}
}

func TestRetryableFlags(t *testing.T) {
	if !ErrTransientNetwork("gateway timeout", nil).Retryable {
		t.Error("transient network error not marked retryable")
	}
	if !ErrRateLimited("slow down").Retryable {
		t.Error("rate limited error not marked retryable")
	}
	if ErrAuthorizationExpired("session over").Retryable {
		t.Error("authorization expiry marked retryable")
	}
}

func TestAsAuthError(t *testing.T) {
	// A typed error passes through unchanged.
	locked := ErrAccountLocked(time.Minute)
	if got := AsAuthError(locked); got != locked {
		t.Errorf("AsAuthError(locked) = %v, want same value", got)
	}

	// AuthClient request errors arrive wrapped in *url.Error.
	replayRejected := &url.Error{
		Op:  "Get",
		URL: "https://api.example.com/jobs",
		Err: fmt.Errorf("request unauthorized after token refresh: %w", transport.ErrAuthorizationExpired),
	}
	got := AsAuthError(replayRejected)
	if got == nil || got.Code != ErrorCodeAuthExpired {
		t.Fatalf("AsAuthError(replay rejection) = %v, want authorization_expired", got)
	}
	if got.Retryable {
		t.Error("authorization expiry classified retryable")
	}

	refreshErr := fmt.Errorf("request blocked: %w", refresh.ErrRefreshFailed)
	if got := AsAuthError(refreshErr); got == nil || got.Code != ErrorCodeRefreshFailed {
		t.Errorf("AsAuthError(refresh failure) = %v, want refresh_failed", got)
	}

	noToken := fmt.Errorf("request blocked: %w", ErrNoRefreshToken)
	if got := AsAuthError(noToken); got == nil || got.Code != ErrorCodeRefreshFailed {
		t.Errorf("AsAuthError(no refresh token) = %v, want refresh_failed", got)
	}

	budget := fmt.Errorf("%w after 3 attempts: connection reset", transport.ErrRetryBudgetExhausted)
	got = AsAuthError(budget)
	if got == nil || got.Code != ErrorCodeTransientNetwork {
		t.Fatalf("AsAuthError(retry budget) = %v, want transient_network_error", got)
	}
	if !got.Retryable {
		t.Error("exhausted retry budget not classified retryable")
	}

	if got := AsAuthError(errors.New("unrelated failure")); got != nil {
		t.Errorf("AsAuthError(unrelated) = %v, want nil", got)
	}
	if got := AsAuthError(nil); got != nil {
		t.Errorf("AsAuthError(nil) = %v, want nil", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "1 minute"},
		{time.Minute, "1 minute"},
		{14*time.Minute + 1*time.Second, "15 minutes"},
		{15 * time.Minute, "15 minutes"},
		{24 * time.Hour, "1440 minutes"},
	}

	for _, tt := range tests {
		if got := FormatRemaining(tt.d); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
