package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Compile-time check that HTTPIssuer implements the Issuer interface.
var _ Issuer = (*HTTPIssuer)(nil)

// Auth endpoint paths relative to the base URL
const (
	loginPath     = "/auth/login"
	refreshPath   = "/auth/refresh"
	logoutPath    = "/auth/logout"
	mfaVerifyPath = "/auth/mfa/verify"
	healthPath    = "/health"
)

// maxResponseSize caps issuer response bodies (1MB).
// Prevents memory exhaustion from a misbehaving server.
const maxResponseSize = 1 << 20

// DefaultRequestTimeout is the timeout for issuer API calls
const DefaultRequestTimeout = 30 * time.Second

// Config holds HTTP issuer configuration
type Config struct {
	// BaseURL is the API base URL (required), e.g., "https://api.example.com"
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	// It must NOT carry the session core's authenticated transport;
	// refresh calls through an intercepted client would deadlock on
	// the refresh they themselves serve.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for issuer API calls (default: 30s)
	RequestTimeout time.Duration

	// RefreshTokenInBody sends the refresh token as a JSON body field
	// instead of a bearer header. Some deployments expect the body form.
	RefreshTokenInBody bool
}

// HTTPIssuer implements the Issuer interface against the REST contract.
type HTTPIssuer struct {
	baseURL            string
	httpClient         *http.Client
	requestTimeout     time.Duration
	refreshTokenInBody bool

	// pendingMFAToken holds the interim token issued by a login that
	// requires MFA; it authorizes the follow-up verification call.
	mu              sync.Mutex
	pendingMFAToken string
}

// New creates a new HTTP issuer
func New(cfg *Config) (*HTTPIssuer, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &HTTPIssuer{
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:         httpClient,
		requestTimeout:     timeout,
		refreshTokenInBody: cfg.RefreshTokenInBody,
	}, nil
}

// sessionPayload is the wire shape for credential-issuing responses.
// Deployments differ on the access token key; both are accepted.
type sessionPayload struct {
	Token        string `json:"token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	MFARequired  bool   `json:"mfa_required"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// toCredentials converts a wire payload to Credentials
func (p *sessionPayload) toCredentials(now time.Time) (*Credentials, error) {
	if p.MFARequired {
		return &Credentials{MFARequired: true}, nil
	}

	access := p.AccessToken
	if access == "" {
		access = p.Token
	}
	if access == "" || p.RefreshToken == "" || p.ExpiresIn <= 0 {
		return nil, fmt.Errorf("issuer returned incomplete credential set")
	}

	return &Credentials{
		AccessToken:  access,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(p.ExpiresIn) * time.Second),
		UserID:       p.User.ID,
		UserEmail:    p.User.Email,
	}, nil
}

// Login exchanges email/password for credentials
func (i *HTTPIssuer) Login(ctx context.Context, email, password, captchaToken string) (*Credentials, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	if captchaToken != "" {
		body["captcha_token"] = captchaToken
	}

	var payload sessionPayload
	if err := i.postJSON(ctx, loginPath, "", body, &payload); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	creds, err := payload.toCredentials(time.Now())
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if creds.MFARequired {
		i.mu.Lock()
		i.pendingMFAToken = payload.Token
		i.mu.Unlock()
	}
	return creds, nil
}

// Refresh mints new credentials from a refresh token.
// The token travels as a bearer header by default, or as a JSON body field
// when the deployment expects that form.
func (i *HTTPIssuer) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	var body any
	bearer := refreshToken
	if i.refreshTokenInBody {
		body = map[string]string{"refresh_token": refreshToken}
		bearer = ""
	}

	var payload sessionPayload
	if err := i.postJSON(ctx, refreshPath, bearer, body, &payload); err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	creds, err := payload.toCredentials(time.Now())
	if err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}
	return creds, nil
}

// Logout revokes the server-side session
func (i *HTTPIssuer) Logout(ctx context.Context, accessToken string) error {
	var payload struct {
		Message string `json:"message"`
		Success bool   `json:"success"`
	}
	if err := i.postJSON(ctx, logoutPath, accessToken, nil, &payload); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	if !payload.Success {
		return fmt.Errorf("logout rejected: %s", payload.Message)
	}
	return nil
}

// VerifyMFA completes a pending login with a one-time code
func (i *HTTPIssuer) VerifyMFA(ctx context.Context, code string) (*Credentials, error) {
	if code == "" {
		return nil, fmt.Errorf("verification code is required")
	}

	i.mu.Lock()
	pending := i.pendingMFAToken
	i.mu.Unlock()

	var payload sessionPayload
	if err := i.postJSON(ctx, mfaVerifyPath, pending, map[string]string{"code": code}, &payload); err != nil {
		return nil, fmt.Errorf("mfa verification failed: %w", err)
	}

	creds, err := payload.toCredentials(time.Now())
	if err != nil {
		return nil, fmt.Errorf("mfa verification failed: %w", err)
	}

	i.mu.Lock()
	i.pendingMFAToken = ""
	i.mu.Unlock()
	return creds, nil
}

// HealthCheck verifies the issuer is reachable
func (i *HTTPIssuer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("issuer unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("issuer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// StatusError carries a non-2xx issuer response
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("issuer returned status %d: %s", e.StatusCode, e.Body)
}

// postJSON issues a POST with an optional bearer token and JSON body,
// decoding a JSON response into out.
func (i *HTTPIssuer) postJSON(ctx context.Context, path, bearer string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, i.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
