// Package refresh serializes concurrent token refresh attempts into a
// single in-flight network call. Callers arriving while a refresh is in
// progress are parked as waiters and released together with the one
// outcome; a failed refresh is terminal for the session and is never
// retried automatically.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/God-Lion/seeker-authcore/issuer"
	"github.com/God-Lion/seeker-authcore/tokenstore"
)

// DefaultTimeout bounds the refresh network call. Deliberately shorter
// than typical request timeouts so a hung refresh does not stall every
// queued request.
const DefaultTimeout = 10 * time.Second

// ErrRefreshFailed wraps any refresh outcome that ends the session:
// issuer rejection, network failure, or timeout.
var ErrRefreshFailed = errors.New("token refresh failed")

// ErrNoRefreshToken marks a refresh attempted without a refresh token on
// hand. It still matches ErrRefreshFailed; the session is over either way.
var ErrNoRefreshToken = errors.New("no refresh token available")

// outcome is the single result every waiter of one refresh batch observes
type outcome struct {
	accessToken string
	err         error
}

// Coordinator guarantees at most one outstanding refresh call at any time.
//
// The refreshing flag is flipped under the mutex before any suspension
// point, closing the window where two near-simultaneous expired-token
// detections could both reach the network.
type Coordinator struct {
	store   *tokenstore.Store
	issuer  issuer.Issuer
	timeout time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []chan outcome

	// OnSuccess, if set, runs after the store is updated with the new
	// record (used to broadcast the refresh to sibling instances).
	OnSuccess func(record tokenstore.Record)

	// OnFailure, if set, runs after the store is cleared on a failed
	// refresh (used to trigger forced sign-out).
	OnFailure func(err error)

	// OnWaiter, if set, observes each caller that joined an in-flight
	// refresh instead of starting one.
	OnWaiter func()

	// OnOutcome, if set, observes every refresh outcome and how long the
	// attempt took, successful or not.
	OnOutcome func(success bool, elapsed time.Duration)
}

// New creates a refresh coordinator.
// A zero or negative timeout uses DefaultTimeout.
func New(store *tokenstore.Store, iss issuer.Issuer, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		store:   store,
		issuer:  iss,
		timeout: timeout,
		logger:  logger,
	}
}

// Refreshing reports whether a refresh call is currently in flight
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Refresh returns a fresh access token, coordinating with any refresh
// already in flight. The first caller performs the network call; later
// callers wait for that call's outcome without triggering another.
//
// ctx cancellation abandons the caller's wait only. The shared refresh
// continues to completion so other waiters are still served and the token
// store is never left mid-transition.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan outcome, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		if c.OnWaiter != nil {
			c.OnWaiter()
		}

		select {
		case out := <-ch:
			return out.accessToken, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	start := time.Now()
	out := c.doRefresh(ctx)
	if c.OnOutcome != nil {
		c.OnOutcome(out.err == nil, time.Since(start))
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	// Buffered channels: an abandoned waiter cannot block the batch
	for _, ch := range waiters {
		ch <- out
	}

	return out.accessToken, out.err
}

// doRefresh performs the network call and settles the token store.
// Success replaces the record wholesale; failure clears it so no stale
// token can be reused after a failed refresh.
func (c *Coordinator) doRefresh(ctx context.Context) outcome {
	refreshToken, ok := c.store.RefreshToken()
	if !ok || refreshToken == "" {
		err := tokenRefreshError("session holds no refresh token", ErrNoRefreshToken)
		c.store.Clear()
		c.signalFailure(err)
		return outcome{err: err}
	}

	// Detach from the caller's cancellation: once started, the refresh
	// runs to completion on behalf of every waiter.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	creds, err := c.issuer.Refresh(callCtx, refreshToken)
	if err != nil {
		c.logger.Warn("token refresh failed",
			"error", err,
			"elapsed", time.Since(start))
		wrapped := tokenRefreshError("issuer rejected refresh", err)
		c.store.Clear()
		c.signalFailure(wrapped)
		return outcome{err: wrapped}
	}

	record := tokenstore.Record{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	}
	if err := c.store.SetTokens(record); err != nil {
		c.logger.Error("refresh produced invalid token record", "error", err)
		wrapped := tokenRefreshError("issuer returned incomplete credentials", err)
		c.store.Clear()
		c.signalFailure(wrapped)
		return outcome{err: wrapped}
	}

	c.logger.Debug("token refresh succeeded", "elapsed", time.Since(start))

	if c.OnSuccess != nil {
		c.OnSuccess(record)
	}
	return outcome{accessToken: record.AccessToken}
}

func (c *Coordinator) signalFailure(err error) {
	if c.OnFailure != nil {
		c.OnFailure(err)
	}
}

// tokenRefreshError builds a terminal refresh error that matches
// errors.Is(err, ErrRefreshFailed).
func tokenRefreshError(msg string, cause error) error {
	if cause != nil {
		return &refreshError{msg: msg, cause: cause}
	}
	return &refreshError{msg: msg}
}

type refreshError struct {
	msg   string
	cause error
}

func (e *refreshError) Error() string {
	if e.cause != nil {
		return "token refresh failed: " + e.msg + ": " + e.cause.Error()
	}
	return "token refresh failed: " + e.msg
}

func (e *refreshError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrRefreshFailed
}

// Is reports whether target is ErrRefreshFailed
func (e *refreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}
