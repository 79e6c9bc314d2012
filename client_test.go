package authcore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/God-Lion/seeker-authcore/instrumentation"
	"github.com/God-Lion/seeker-authcore/internal/testutil"
	"github.com/God-Lion/seeker-authcore/issuer"
	"github.com/God-Lion/seeker-authcore/issuer/mock"
	"github.com/God-Lion/seeker-authcore/storage/memory"
	"github.com/God-Lion/seeker-authcore/tabsync"
	"github.com/God-Lion/seeker-authcore/tokenstore"
)

func tokenstoreRecord(creds *issuer.Credentials) tokenstore.Record {
	return tokenstore.Record{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	}
}

func newTestClient(t *testing.T, iss issuer.Issuer, opts ...func(*Options)) *Client {
	t.Helper()
	o := Options{
		Issuer:  iss,
		Records: memory.NewStore(),
		Config: Config{
			// No pacing in tests unless a test opts in.
			Pacing: PacingConfig{Rate: 0},
		},
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLoginSuccess(t *testing.T) {
	iss := mock.NewMockIssuer()
	c := newTestClient(t, iss)

	user, err := c.Login(context.Background(), "user@example.com", "hunter2!", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != "mock-user-123" {
		t.Errorf("user.ID = %q", user.ID)
	}
	if !c.SignedIn() {
		t.Error("SignedIn() = false after login")
	}
	token, ok := c.Tokens().AccessToken()
	if !ok || token != "mock-access-token" {
		t.Errorf("access token = %q, %v", token, ok)
	}
}

func TestLoginFailureCountsAttempt(t *testing.T) {
	iss := mock.NewMockIssuer()
	rejected := errors.New("invalid credentials")
	iss.LoginFunc = func(ctx context.Context, email, password, captchaToken string) (*issuer.Credentials, error) {
		return nil, rejected
	}
	c := newTestClient(t, iss)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Login(ctx, "user@x.com", "wrong", ""); err == nil {
			t.Fatal("expected login error")
		}
	}

	// Third failure locks the account client-side.
	_, err := c.Login(ctx, "user@x.com", "wrong", "")
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Code != ErrorCodeAccountLocked {
		t.Fatalf("expected account_locked, got %v", err)
	}
	if authErr.RetryAfter != 15*time.Minute {
		t.Errorf("RetryAfter = %v, want 15m", authErr.RetryAfter)
	}

	// While locked, the issuer is not consulted.
	calls := iss.Calls("Login")
	if _, err := c.Login(ctx, "user@x.com", "wrong", ""); err == nil {
		t.Fatal("expected lockout rejection")
	}
	if iss.Calls("Login") != calls {
		t.Error("issuer consulted while account locked")
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	iss := mock.NewMockIssuer()
	fail := true
	iss.LoginFunc = func(ctx context.Context, email, password, captchaToken string) (*issuer.Credentials, error) {
		if fail {
			return nil, errors.New("invalid credentials")
		}
		return &issuer.Credentials{
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(time.Hour),
			UserEmail:    email,
		}, nil
	}
	c := newTestClient(t, iss)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c.Login(ctx, "user@x.com", "wrong", "")
	}
	fail = false
	if _, err := c.Login(ctx, "user@x.com", "right", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Counter restarted: two more failures do not lock.
	fail = true
	for i := 0; i < 2; i++ {
		_, err := c.Login(ctx, "user@x.com", "wrong", "")
		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.Code == ErrorCodeAccountLocked {
			t.Fatal("locked despite throttle reset")
		}
	}
}

func TestLoginMFAPending(t *testing.T) {
	iss := mock.NewMockIssuer()
	iss.LoginFunc = func(ctx context.Context, email, password, captchaToken string) (*issuer.Credentials, error) {
		return &issuer.Credentials{MFARequired: true}, nil
	}
	c := newTestClient(t, iss)
	ctx := context.Background()

	_, err := c.Login(ctx, "user@example.com", "hunter2!", "")
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}
	if c.SignedIn() {
		t.Error("signed in while MFA pending")
	}

	user, err := c.VerifyMFA(ctx, "user@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if user == nil {
		t.Fatal("VerifyMFA returned nil user")
	}
	if !c.SignedIn() {
		t.Error("not signed in after MFA verification")
	}
}

func TestLogoutClearsLocalStateOnServerError(t *testing.T) {
	iss := mock.NewMockIssuer()
	iss.LogoutFunc = func(ctx context.Context, accessToken string) error {
		return errors.New("network down")
	}
	c := newTestClient(t, iss)
	ctx := context.Background()

	if _, err := c.Login(ctx, "user@example.com", "hunter2!", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	err := c.Logout(ctx)
	if err == nil {
		t.Error("expected error from failed server-side logout")
	}
	if c.SignedIn() {
		t.Error("local state not cleared after logout")
	}
}

func TestForceSignOutRecordsRedirectPath(t *testing.T) {
	iss := mock.NewMockIssuer()
	c := newTestClient(t, iss)
	ctx := context.Background()

	if _, err := c.Login(ctx, "user@example.com", "hunter2!", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	route := c.ForceSignOut(ctx, "refresh_failed", "/jobs/42")
	if route != DefaultSignInRoute {
		t.Errorf("route = %q, want %q", route, DefaultSignInRoute)
	}
	if c.SignedIn() {
		t.Error("still signed in after forced sign-out")
	}

	path, err := c.ConsumeRedirectPath(ctx)
	if err != nil {
		t.Fatalf("ConsumeRedirectPath failed: %v", err)
	}
	if path != "/jobs/42" {
		t.Errorf("redirect path = %q, want %q", path, "/jobs/42")
	}

	// Second read is empty: delivered exactly once.
	path, err = c.ConsumeRedirectPath(ctx)
	if err != nil {
		t.Fatalf("second ConsumeRedirectPath failed: %v", err)
	}
	if path != "" {
		t.Errorf("redirect path delivered twice: %q", path)
	}
}

func TestSignOutPropagatesToSiblingInstance(t *testing.T) {
	bus := tabsync.NewBus()
	iss := mock.NewMockIssuer()
	withBus := func(o *Options) { o.Broadcaster = bus }

	a := newTestClient(t, iss, withBus)
	b := newTestClient(t, iss, withBus)
	ctx := context.Background()

	if _, err := a.Login(ctx, "user@example.com", "hunter2!", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := b.Login(ctx, "user@example.com", "hunter2!", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for b.SignedIn() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.SignedIn() {
		t.Error("sibling instance still signed in after sign-out broadcast")
	}
	// The sender already cleared its own state; the broadcast must not
	// have looped back and caused side effects beyond that.
	if a.SignedIn() {
		t.Error("sender signed in again")
	}
}

func TestRefreshBroadcastAdoptedBySibling(t *testing.T) {
	bus := tabsync.NewBus()
	iss := mock.NewMockIssuer()
	withBus := func(o *Options) { o.Broadcaster = bus }

	a := newTestClient(t, iss, withBus)
	b := newTestClient(t, iss, withBus)

	// a holds an expired credential set; b holds the same stale set.
	stale := testutil.ExpiredCredentials()
	for _, c := range []*Client{a, b} {
		err := c.Tokens().SetTokens(tokenstoreRecord(stale))
		if err != nil {
			t.Fatalf("SetTokens failed: %v", err)
		}
	}

	// A request through a's auth client triggers a refresh, which is
	// broadcast and adopted by b.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := a.AuthClient().Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if token, _ := b.Tokens().AccessToken(); token == "new-mock-access-token" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	token, _ := b.Tokens().AccessToken()
	t.Errorf("sibling token = %q, want refreshed token", token)
}

func TestFailedRefreshForcesSignOut(t *testing.T) {
	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		return nil, errors.New("refresh token revoked")
	}
	c := newTestClient(t, iss)

	stale := testutil.ExpiredCredentials()
	if err := c.Tokens().SetTokens(tokenstoreRecord(stale)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := c.AuthClient().Get(server.URL); err == nil {
		t.Fatal("expected request to fail after refresh failure")
	}
	if c.SignedIn() {
		t.Error("still signed in after failed refresh")
	}
}

func TestFailedRefreshRecordsRedirectPath(t *testing.T) {
	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		return nil, errors.New("refresh token revoked")
	}
	c := newTestClient(t, iss, func(o *Options) {
		o.CurrentPath = func() string { return "/jobs/42/apply" }
	})

	stale := testutil.ExpiredCredentials()
	if err := c.Tokens().SetTokens(tokenstoreRecord(stale)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := c.AuthClient().Get(server.URL); err == nil {
		t.Fatal("expected request to fail after refresh failure")
	}
	if c.SignedIn() {
		t.Error("still signed in after failed refresh")
	}

	// The location at the moment of escalation was recorded, so the app
	// can return the user there after the next login.
	path, err := c.ConsumeRedirectPath(context.Background())
	if err != nil {
		t.Fatalf("ConsumeRedirectPath failed: %v", err)
	}
	if path != "/jobs/42/apply" {
		t.Errorf("redirect path = %q, want %q", path, "/jobs/42/apply")
	}
}

func TestInstrumentedSessionLifecycle(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "authcore-test"})
	if err != nil {
		t.Fatalf("instrumentation.New failed: %v", err)
	}

	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		return nil, errors.New("refresh token revoked")
	}
	c := newTestClient(t, iss, func(o *Options) { o.Instrumentation = inst })
	ctx := context.Background()

	if _, err := c.Login(ctx, "user@example.com", "hunter2!", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// An expired set forces the refresh path, which fails and escalates;
	// every hook along the way records through the instruments.
	stale := testutil.ExpiredCredentials()
	if err := c.Tokens().SetTokens(tokenstoreRecord(stale)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := c.AuthClient().Get(server.URL); err == nil {
		t.Fatal("expected request to fail after refresh failure")
	}
	if c.SignedIn() {
		t.Error("still signed in after failed refresh")
	}
}

func TestPacingRejectsBurst(t *testing.T) {
	iss := mock.NewMockIssuer()
	c := newTestClient(t, iss, func(o *Options) {
		o.Config.Pacing = PacingConfig{Rate: 1, Burst: 1}
	})
	ctx := context.Background()

	if _, err := c.Login(ctx, "user@example.com", "hunter2!", ""); err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	_, err := c.Login(ctx, "user@example.com", "hunter2!", "")
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Code != ErrorCodeRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{Records: memory.NewStore()}); err == nil {
		t.Error("expected error for missing issuer")
	}
	if _, err := New(Options{Issuer: mock.NewMockIssuer()}); err == nil {
		t.Error("expected error for missing record store")
	}
}

func TestPasswordStrengthExposed(t *testing.T) {
	iss := mock.NewMockIssuer()
	c := newTestClient(t, iss)

	result := c.PasswordStrength("Correct-Horse-Battery-9")
	if result.Label != "strong" {
		t.Errorf("Label = %q, want strong", result.Label)
	}
}
