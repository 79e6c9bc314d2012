// Package authcore implements the client-side session core for the Seeker
// web application: token storage, coordinated refresh, an authenticated
// HTTP client with 401 recovery and transient retries, cross-instance
// session sync, and a brute-force throttle guard.
package authcore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/God-Lion/seeker-authcore/instrumentation"
	"github.com/God-Lion/seeker-authcore/issuer"
	"github.com/God-Lion/seeker-authcore/refresh"
	"github.com/God-Lion/seeker-authcore/security"
	"github.com/God-Lion/seeker-authcore/storage"
	"github.com/God-Lion/seeker-authcore/tabsync"
	"github.com/God-Lion/seeker-authcore/tokenstore"
	"github.com/God-Lion/seeker-authcore/transport"
)

// Options carries the collaborators a Client is built from
type Options struct {
	// Issuer is the remote credential issuer. Required.
	Issuer issuer.Issuer

	// Records persists login security records and the redirect path.
	// Required.
	Records storage.RecordStore

	// Broadcaster is the cross-instance sync fabric. Optional; without
	// one, sync is disabled and stale instances self-correct via the
	// normal 401 path.
	Broadcaster tabsync.Broadcaster

	// OAuth enables the authorization-code login flow. Optional.
	OAuth *issuer.OAuthExchanger

	// Instrumentation provides metrics and tracing. Optional; nil means
	// no-op instruments.
	Instrumentation *instrumentation.Instrumentation

	// CurrentPath, if set, reports the location the user is on right now.
	// It is consulted when the session ends without user intent (a failed
	// refresh, a 401 surviving the replay) so the location can be restored
	// after the next login. Without it, internally triggered sign-outs
	// record no redirect path.
	CurrentPath func() string

	// Config tunes the session core. Zero fields use documented defaults.
	Config Config
}

// tokenSyncPayload carries the refreshed credential set between instances
type tokenSyncPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// signOutPayload carries the reason a session was terminated
type signOutPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Client is the session manager. It owns the token store and coordinates
// every component of the session core. All methods are safe for concurrent
// use.
type Client struct {
	config      Config
	issuer      issuer.Issuer
	oauth       *issuer.OAuthExchanger
	records     storage.RecordStore
	tokens      *tokenstore.Store
	coordinator *refresh.Coordinator
	guard       *security.LoginGuard
	pacer       *security.RateLimiter
	auditor     *security.Auditor
	metrics     *instrumentation.Metrics
	tracer      trace.Tracer
	currentPath func() string
	sync        *tabsync.Channel
	syncCancel  func()
	httpClient  *http.Client

	mu     sync.Mutex
	closed bool
}

// New creates a session manager from the given collaborators.
// The returned Client must be closed with Close when no longer needed.
func New(opts Options) (*Client, error) {
	if opts.Issuer == nil {
		return nil, fmt.Errorf("authcore: issuer is required")
	}
	if opts.Records == nil {
		return nil, fmt.Errorf("authcore: record store is required")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("authcore: invalid config: %w", err)
	}

	logger := cfg.Logger
	auditor := security.NewAuditor(logger, true)

	c := &Client{
		config:      cfg,
		issuer:      opts.Issuer,
		oauth:       opts.OAuth,
		records:     opts.Records,
		tokens:      tokenstore.New(cfg.Token.ExpiryBuffer),
		auditor:     auditor,
		currentPath: opts.CurrentPath,
	}

	if opts.Instrumentation != nil {
		c.metrics = opts.Instrumentation.Metrics()
		c.tracer = opts.Instrumentation.Tracer("session")
	}

	guard, err := security.NewLoginGuard(opts.Records, auditor, security.GuardConfig{
		LockoutThresholds: cfg.Throttle.LockoutThresholds,
		LockoutDurations:  cfg.Throttle.LockoutDurations,
		CaptchaThreshold:  cfg.Throttle.CaptchaThreshold,
		AlertThreshold:    cfg.Throttle.AlertThreshold,
		ResetWindow:       cfg.Throttle.ResetWindow,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("authcore: %w", err)
	}
	c.guard = guard

	if cfg.Pacing.Rate > 0 {
		c.pacer = security.NewRateLimiter(cfg.Pacing.Rate, cfg.Pacing.Burst, logger)
	}

	c.coordinator = refresh.New(c.tokens, opts.Issuer, cfg.Refresh.Timeout, logger)
	c.coordinator.OnSuccess = c.onRefreshSucceeded
	c.coordinator.OnFailure = c.onRefreshFailed
	c.coordinator.OnWaiter = c.onRefreshWaiter
	c.coordinator.OnOutcome = c.onRefreshMeasured

	if opts.Broadcaster != nil {
		c.sync = tabsync.NewChannel(opts.Broadcaster, logger)
		c.syncCancel = c.sync.Listen(c.handleSyncMessage)
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	c.httpClient = &http.Client{
		Timeout: base.Timeout,
		Jar:     base.Jar,
		Transport: &transport.Transport{
			Base:        base.Transport,
			Store:       c.tokens,
			Coordinator: c.coordinator,
			Retry: transport.RetryPolicy{
				MaxAttempts:       cfg.Retry.MaxAttempts,
				BaseDelay:         cfg.Retry.BaseDelay,
				RetryableStatuses: cfg.Retry.RetryableStatuses,
			},
			OnSessionEnd:     c.onSessionEnd,
			OnAuthReplay:     c.onAuthReplay,
			OnTransientRetry: c.onTransientRetry,
			OnRetryExhausted: c.onRetryExhausted,
			Logger:           logger,
		},
	}

	return c, nil
}

// Login authenticates with email and password. On success the token store
// holds the new credential set and the throttle record for the identifier
// is reset. A login rejected by the issuer counts as a failed attempt and
// may lock the account client-side.
//
// When the login is pending MFA, Login returns ErrMFARequired; complete it
// with VerifyMFA.
func (c *Client) Login(ctx context.Context, email, password, captchaToken string) (*User, error) {
	ctx, span := c.startSpan(ctx, "authcore.login")
	defer endSpan(span)

	user, err := c.login(ctx, email, password, captchaToken)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.AddSessionAttributes(span, c.InstanceID(), true)
	instrumentation.SetSpanSuccess(span)
	return user, nil
}

func (c *Client) login(ctx context.Context, email, password, captchaToken string) (*User, error) {
	if c.pacer != nil && !c.pacer.Allow(email) {
		c.auditor.LogRateLimitExceeded(email)
		if c.metrics != nil {
			c.metrics.RecordRateLimitExceeded(ctx, "login")
		}
		return nil, ErrRateLimited("login submissions too frequent")
	}

	locked, remaining, err := c.guard.IsAccountLocked(ctx, email)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrAccountLocked(remaining)
	}

	needCaptcha, err := c.guard.RequiresCaptcha(ctx, email)
	if err != nil {
		return nil, err
	}
	if needCaptcha && captchaToken == "" {
		return nil, NewAuthError(ErrorCodeCaptchaRequired,
			"captcha required after repeated failures", http.StatusForbidden)
	}

	creds, err := c.issuer.Login(ctx, email, password, captchaToken)
	if err != nil {
		return nil, c.failLogin(ctx, email, err)
	}

	if creds.MFARequired {
		if c.metrics != nil {
			c.metrics.RecordLoginAttempt(ctx, "mfa_pending")
		}
		return nil, ErrMFARequired
	}

	return c.completeLogin(ctx, email, creds)
}

// VerifyMFA completes a login that is pending MFA verification
func (c *Client) VerifyMFA(ctx context.Context, email, code string) (*User, error) {
	if c.pacer != nil && !c.pacer.Allow(email) {
		c.auditor.LogRateLimitExceeded(email)
		if c.metrics != nil {
			c.metrics.RecordRateLimitExceeded(ctx, "mfa")
		}
		return nil, ErrRateLimited("verification submissions too frequent")
	}

	creds, err := c.issuer.VerifyMFA(ctx, code)
	if err != nil {
		return nil, c.failLogin(ctx, email, err)
	}

	c.auditor.LogEvent(security.Event{Type: security.EventMFAVerified, Identifier: email})
	return c.completeLogin(ctx, email, creds)
}

// AuthorizationURL returns the issuer's authorization URL for the OAuth
// login flow. Returns an empty string when the flow is not configured.
func (c *Client) AuthorizationURL(state string) string {
	if c.oauth == nil {
		return ""
	}
	return c.oauth.AuthorizationURL(state)
}

// LoginWithOAuth completes the authorization-code flow and installs the
// resulting credential set.
func (c *Client) LoginWithOAuth(ctx context.Context, code string) (*User, error) {
	if c.oauth == nil {
		return nil, fmt.Errorf("authcore: oauth flow not configured")
	}
	creds, err := c.oauth.ExchangeCode(ctx, code)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordLoginAttempt(ctx, "failure")
		}
		return nil, err
	}
	return c.completeLogin(ctx, creds.UserEmail, creds)
}

// Logout revokes the server-side session best-effort, then clears local
// state and tells sibling instances to do the same. Local state is cleared
// even when revocation fails.
func (c *Client) Logout(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "authcore.logout")
	defer endSpan(span)
	instrumentation.AddSessionAttributes(span, c.InstanceID(), c.SignedIn())

	var revokeErr error
	if token, ok := c.tokens.AccessToken(); ok {
		revokeErr = c.issuer.Logout(ctx, token)
	}

	c.tokens.Clear()
	c.auditor.LogEvent(security.Event{Type: security.EventSignOut, InstanceID: c.InstanceID()})
	if c.metrics != nil {
		c.metrics.RecordLogout(ctx)
	}
	c.broadcastSignOut("user_logout")

	if revokeErr != nil {
		instrumentation.RecordError(span, revokeErr)
		return fmt.Errorf("authcore: server-side logout: %w", revokeErr)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

// ForceSignOut terminates the session without user intent: it records the
// current path for redirect-after-login, clears credentials, notifies
// sibling instances, and returns the sign-in route to navigate to.
func (c *Client) ForceSignOut(ctx context.Context, reason, currentPath string) string {
	ctx, span := c.startSpan(ctx, "authcore.forced_signout")
	defer endSpan(span)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrSignOutReason, reason))

	if currentPath != "" && currentPath != c.config.SignInRoute {
		if err := c.records.SaveRedirectPath(ctx, currentPath); err != nil {
			c.config.Logger.Warn("Failed to save redirect path", "error", err)
		}
	}

	c.tokens.Clear()
	c.auditor.LogForcedSignOut(c.InstanceID(), reason)
	if c.metrics != nil {
		c.metrics.RecordForcedSignOut(ctx, reason)
	}
	c.broadcastSignOut(reason)

	return c.config.SignInRoute
}

// ConsumeRedirectPath returns the path to navigate to after a successful
// login and clears it, so the value is delivered exactly once. Returns an
// empty string when no redirect is pending.
func (c *Client) ConsumeRedirectPath(ctx context.Context) (string, error) {
	return c.records.ConsumeRedirectPath(ctx)
}

// AuthClient returns an HTTP client whose requests carry the session's
// bearer token and recover from authorization expiry and transient
// failures.
func (c *Client) AuthClient() *http.Client {
	return c.httpClient
}

// Tokens exposes the token store for read access (e.g., checking whether a
// session exists on startup).
func (c *Client) Tokens() *tokenstore.Store {
	return c.tokens
}

// SignedIn reports whether a credential set is present. It does not check
// expiry; an expired set still refreshes on the next request.
func (c *Client) SignedIn() bool {
	_, ok := c.tokens.AccessToken()
	return ok
}

// PasswordStrength scores a candidate password for registration and
// password-change forms.
func (c *Client) PasswordStrength(password string) security.PasswordStrength {
	return security.ValidatePasswordStrength(password)
}

// InstanceID returns this instance's identity on the sync fabric, or an
// empty string when sync is disabled.
func (c *Client) InstanceID() string {
	if c.sync == nil {
		return ""
	}
	return c.sync.ID()
}

// Close releases background resources. The Client must not be used after
// Close.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.pacer != nil {
		c.pacer.Stop()
	}
	if c.syncCancel != nil {
		c.syncCancel()
	}
	if c.sync != nil {
		return c.sync.Close()
	}
	return nil
}

// completeLogin installs a credential set and resets throttle state
func (c *Client) completeLogin(ctx context.Context, email string, creds *issuer.Credentials) (*User, error) {
	err := c.tokens.SetTokens(tokenstore.Record{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	})
	if err != nil {
		return nil, ErrInvalidTokenRecord("issuer returned an incomplete credential set")
	}

	if email != "" {
		if err := c.guard.RecordSuccessfulLogin(ctx, email); err != nil {
			c.config.Logger.Warn("Failed to reset throttle record", "error", err)
		}
	}

	c.auditor.LogEvent(security.Event{Type: security.EventLoginSucceeded, Identifier: email})
	if c.metrics != nil {
		c.metrics.RecordLoginAttempt(ctx, "success")
	}

	return &User{ID: creds.UserID, Email: creds.UserEmail}, nil
}

// failLogin counts a rejected login against the throttle guard and maps
// the resulting state onto the error surfaced to the caller.
func (c *Client) failLogin(ctx context.Context, email string, cause error) error {
	if c.metrics != nil {
		c.metrics.RecordLoginAttempt(ctx, "failure")
	}

	state, guardErr := c.guard.RecordFailedAttempt(ctx, email)
	if guardErr != nil {
		c.config.Logger.Warn("Failed to record login attempt", "error", guardErr)
		return cause
	}

	if state.Locked {
		if c.metrics != nil {
			c.metrics.RecordAccountLockout(ctx, state.LockoutLevel)
		}
		err := ErrAccountLocked(state.Remaining)
		err.Err = cause
		return err
	}
	if state.RequiresCaptcha {
		err := NewAuthError(ErrorCodeCaptchaRequired,
			"captcha required after repeated failures", http.StatusForbidden)
		err.Err = cause
		return err
	}
	return cause
}

// onRefreshSucceeded announces the new credential set to sibling instances
func (c *Client) onRefreshSucceeded(record tokenstore.Record) {
	c.auditor.LogTokenRefreshed(c.InstanceID())
	if c.sync == nil {
		return
	}
	err := c.sync.Publish(tabsync.TypeTokenRefreshed, tokenSyncPayload{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresAt:    record.ExpiresAt,
	})
	if err != nil {
		c.config.Logger.Warn("Failed to broadcast token refresh", "error", err)
	} else if c.metrics != nil {
		c.metrics.RecordSyncSent(context.Background(), tabsync.TypeTokenRefreshed)
	}
}

// onRefreshFailed escalates a failed refresh to session termination
func (c *Client) onRefreshFailed(err error) {
	c.ForceSignOut(context.Background(), "refresh_failed", c.currentLocation())
}

// onSessionEnd runs when a replayed request is rejected again with 401
func (c *Client) onSessionEnd(err error) {
	c.ForceSignOut(context.Background(), "authorization_expired", c.currentLocation())
}

// currentLocation resolves the path to restore after the next login when
// the session ends without user intent.
func (c *Client) currentLocation() string {
	if c.currentPath == nil {
		return ""
	}
	return c.currentPath()
}

func (c *Client) onAuthReplay() {
	if c.metrics != nil {
		c.metrics.RecordAuthReplay(context.Background(), true)
	}
}

func (c *Client) onTransientRetry(attempt int) {
	if c.metrics != nil {
		c.metrics.RecordTransientRetry(context.Background(), attempt)
	}
}

func (c *Client) onRetryExhausted(attempts int) {
	if c.metrics != nil {
		c.metrics.RecordRetryExhausted(context.Background(), attempts)
	}
}

func (c *Client) onRefreshWaiter() {
	if c.metrics != nil {
		c.metrics.RecordRefreshWaiter(context.Background())
	}
}

// onRefreshMeasured observes every refresh outcome, successful or not
func (c *Client) onRefreshMeasured(success bool, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordRefresh(context.Background(), success,
			float64(elapsed)/float64(time.Millisecond))
	}
}

// startSpan opens a trace span when instrumentation is configured.
// The returned span may be nil; endSpan and the instrumentation helpers
// tolerate that.
func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, nil
	}
	return c.tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// broadcastSignOut tells sibling instances the session ended
func (c *Client) broadcastSignOut(reason string) {
	if c.sync == nil {
		return
	}
	if err := c.sync.Publish(tabsync.TypeSignOut, signOutPayload{Reason: reason}); err != nil {
		c.config.Logger.Warn("Failed to broadcast sign-out", "error", err)
	} else if c.metrics != nil {
		c.metrics.RecordSyncSent(context.Background(), tabsync.TypeSignOut)
	}
}

// handleSyncMessage applies state transitions announced by sibling
// instances. Self-echoes were already dropped by the channel.
func (c *Client) handleSyncMessage(msg tabsync.Message) {
	switch msg.Type {
	case tabsync.TypeSignOut:
		c.tokens.Clear()
		c.auditor.LogSyncSignOutReceived(c.InstanceID(), msg.SenderID)
		if c.metrics != nil {
			c.metrics.RecordSyncReceived(context.Background(), msg.Type)
		}

	case tabsync.TypeTokenRefreshed:
		var payload tokenSyncPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.config.Logger.Warn("Malformed token sync payload", "error", err)
			return
		}
		err := c.tokens.SetTokens(tokenstore.Record{
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
			ExpiresAt:    payload.ExpiresAt,
		})
		if err != nil {
			c.config.Logger.Warn("Rejected incomplete token sync payload", "error", err)
			return
		}
		if c.metrics != nil {
			c.metrics.RecordSyncReceived(context.Background(), msg.Type)
		}
	}
}
