package issuer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// OAuthExchanger exchanges an OAuth authorization code for a credential set
// usable by the session core. It wraps an oauth2.Config for the social
// login path (Google, LinkedIn, etc.); the resulting tokens feed the same
// token store as password logins.
type OAuthExchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// OAuthConfig holds OAuth login configuration
type OAuthConfig struct {
	// ClientID is the OAuth client ID (required)
	ClientID string

	// ClientSecret is the OAuth client secret, empty for public clients
	ClientSecret string

	// AuthURL and TokenURL are the provider endpoints (required)
	AuthURL  string
	TokenURL string

	// RedirectURL is the OAuth callback URL
	RedirectURL string

	// Scopes are the requested scopes
	Scopes []string

	// HTTPClient is an optional custom HTTP client for the exchange.
	// It must not carry the session core's authenticated transport.
	HTTPClient *http.Client
}

// NewOAuthExchanger creates a new OAuth code exchanger
func NewOAuthExchanger(cfg *OAuthConfig) (*OAuthExchanger, error) {
	if cfg == nil || cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("auth URL and token URL are required")
	}

	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

// AuthorizationURL generates the URL to redirect users for authentication
func (e *OAuthExchanger) AuthorizationURL(state string) string {
	return e.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode exchanges an authorization code for credentials
func (e *OAuthExchanger) ExchangeCode(ctx context.Context, code string) (*Credentials, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	return credentialsFromOAuth2(token)
}

// credentialsFromOAuth2 maps an oauth2.Token to Credentials.
// The full-record invariant still applies: a provider token without a
// refresh token or expiry cannot seed a session.
func credentialsFromOAuth2(token *oauth2.Token) (*Credentials, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("provider returned no access token")
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("provider returned no refresh token; request offline access")
	}
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		// Some providers omit expiry; assume a conservative lifetime
		expiresAt = time.Now().Add(time.Hour)
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
