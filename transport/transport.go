// Package transport implements the authenticated HTTP round-trip pipeline:
// a pre-flight hook that attaches a valid bearer token (refreshing first
// when the token is stale), and a post-flight hook that recovers from a
// first 401 with a single refresh-and-replay and retries transient
// failures with exponential backoff.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/God-Lion/seeker-authcore/refresh"
	"github.com/God-Lion/seeker-authcore/tokenstore"
)

// Default retry policy values
const (
	// DefaultMaxRetries is the retry budget for transient failures,
	// counted after the initial attempt.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the backoff base; attempt n waits base * 2^n
	DefaultBaseDelay = 500 * time.Millisecond
)

// requestIDHeader carries a per-request correlation ID
const requestIDHeader = "X-Request-ID"

// ErrRetryBudgetExhausted wraps a transport error that persisted through
// every backoff retry.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// ErrAuthorizationExpired marks a request rejected with 401 again after
// its single refresh-and-replay. The session is over; by the time the
// caller sees this error the sign-out escalation has already run.
var ErrAuthorizationExpired = errors.New("authorization expired")

// RetryPolicy controls transient-failure retries.
// The 401 refresh-and-replay path is independent of this policy: a
// response that is both 401 and retryable follows the 401 path.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of retries after the initial
	// attempt. Zero uses DefaultMaxRetries; negative disables retries.
	MaxAttempts int

	// BaseDelay is the backoff base. Zero uses DefaultBaseDelay.
	BaseDelay time.Duration

	// RetryableStatuses lists response codes retried with backoff.
	// Defaults to 408, 429, 502, 503, 504.
	RetryableStatuses []int
}

// Transport is an http.RoundTripper that authenticates outgoing requests
// against the token store and recovers from authorization expiry.
// Retry counters and the auth-replay marker live in the round trip's
// local state, so one request's history never affects another.
type Transport struct {
	// Base is the underlying round tripper. nil uses http.DefaultTransport.
	Base http.RoundTripper

	// Store is the token store consulted pre-flight (read-only here;
	// only the coordinator and sign-in/out operations mutate it).
	Store *tokenstore.Store

	// Coordinator serializes refreshes for stale tokens and 401 recovery
	Coordinator *refresh.Coordinator

	// Retry is the transient-failure retry policy
	Retry RetryPolicy

	// OnSessionEnd, if set, runs when a replayed request is rejected
	// again with 401 (session termination escalation).
	OnSessionEnd func(err error)

	// OnAuthReplay, if set, observes each 401-triggered replay
	OnAuthReplay func()

	// OnTransientRetry, if set, observes each backoff retry
	OnTransientRetry func(attempt int)

	// OnRetryExhausted, if set, observes a request that consumed its whole
	// retry budget without reaching the server.
	OnRetryExhausted func(attempts int)

	// Logger for structured logging (optional)
	Logger *slog.Logger
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Clone before mutating; RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}

	// Pre-flight: attach a valid bearer token, refreshing first if stale.
	// Requests with no session pass through unauthenticated (public
	// endpoints). A rejected refresh means the request is never sent.
	if _, ok := t.Store.AccessToken(); ok {
		token, err := t.freshToken(req.Context())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.sendWithRetry(req, logger)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// 401 path: one refresh-and-replay for requests that carried a token.
	// Unauthenticated requests got a legitimate 401; surface it.
	if req.Header.Get("Authorization") == "" {
		return resp, nil
	}
	if !replayable(req) {
		logger.Warn("401 response on non-replayable request", "method", req.Method, "url", req.URL.Redacted())
		return resp, nil
	}

	closeBody(resp)

	token, err := t.Coordinator.Refresh(req.Context())
	if err != nil {
		// Refresh failure during the 401 path is terminal; the
		// coordinator has already cleared state and signaled sign-out.
		return nil, err
	}

	if t.OnAuthReplay != nil {
		t.OnAuthReplay()
	}
	logger.Debug("replaying request after token refresh", "method", req.Method, "url", req.URL.Redacted())

	replay, err := rewind(req)
	if err != nil {
		return nil, err
	}
	replay.Header.Set("Authorization", "Bearer "+token)

	resp, err = t.sendWithRetry(replay, logger)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The replay is marked by reaching this branch at most once per
		// original request; no third attempt can occur.
		closeBody(resp)
		err := fmt.Errorf("request unauthorized after token refresh: %w", ErrAuthorizationExpired)
		if t.OnSessionEnd != nil {
			t.OnSessionEnd(err)
		}
		return nil, err
	}

	return resp, nil
}

// freshToken returns an access token that is not within the expiry buffer,
// refreshing through the coordinator when needed.
func (t *Transport) freshToken(ctx context.Context) (string, error) {
	if !t.Store.IsExpired() {
		if token, ok := t.Store.AccessToken(); ok {
			return token, nil
		}
	}
	return t.Coordinator.Refresh(ctx)
}

// sendWithRetry issues the request, retrying transient failures with
// exponential backoff. 401 is never handled here.
func (t *Transport) sendWithRetry(req *http.Request, logger *slog.Logger) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	maxAttempts := t.Retry.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxRetries
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	baseDelay := t.Retry.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var resp *http.Response
	var err error
	attempt := 0
	for {
		resp, err = base.RoundTrip(req)

		if !t.shouldRetry(resp, err) || attempt >= maxAttempts {
			break
		}
		if !replayable(req) {
			break
		}
		if resp != nil {
			closeBody(resp)
		}

		delay := baseDelay * (1 << attempt)
		attempt++
		if t.OnTransientRetry != nil {
			t.OnTransientRetry(attempt)
		}
		logger.Debug("retrying transient failure",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"attempt", attempt,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}

		req, err = rewind(req)
		if err != nil {
			return nil, err
		}
	}

	if err != nil {
		if attempt > 0 {
			if t.OnRetryExhausted != nil {
				t.OnRetryExhausted(attempt + 1)
			}
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryBudgetExhausted, attempt+1, err)
		}
		return nil, err
	}
	return resp, nil
}

// shouldRetry reports whether the outcome is in the transient retryable set
func (t *Transport) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		// No response at all: connection errors are retryable, caller
		// cancellation is not.
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	statuses := t.Retry.RetryableStatuses
	if len(statuses) == 0 {
		statuses = []int{http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	}
	for _, status := range statuses {
		if resp.StatusCode == status && status != http.StatusUnauthorized {
			return true
		}
	}
	return false
}

// replayable reports whether the request body can be rewound for another attempt
func replayable(req *http.Request) bool {
	return req.Body == nil || req.GetBody != nil
}

// rewind produces a request ready for re-issue, restoring the body
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot replay request with non-rewindable body")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	out.Body = body
	return out, nil
}

// closeBody drains and closes a response body so the connection can be reused
func closeBody(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
