// Package issuer defines the interface for the remote credential issuer and
// implements the HTTP contract for login, refresh, logout, and MFA
// verification. The issuer is an opaque collaborator: server-side session
// storage, password hashing, and MFA algorithms are its business.
package issuer

import (
	"context"
	"time"
)

// Credentials is a freshly minted credential set from the issuer
type Credentials struct {
	// AccessToken is the short-lived bearer credential
	AccessToken string

	// RefreshToken is the longer-lived credential used to mint new
	// access tokens
	RefreshToken string

	// ExpiresAt is the absolute expiry of AccessToken
	ExpiresAt time.Time

	// UserID is the authenticated account identifier, when returned
	UserID string

	// UserEmail is the authenticated account email, when returned
	UserEmail string

	// MFARequired indicates the login is pending MFA verification;
	// the token fields are empty in that case.
	MFARequired bool
}

// Issuer defines the credential issuer abstraction.
// Implementations must be safe for concurrent use.
type Issuer interface {
	// Login exchanges email/password for credentials.
	// captchaToken is a solved challenge when one is required; pass ""
	// otherwise.
	Login(ctx context.Context, email, password, captchaToken string) (*Credentials, error)

	// Refresh mints new credentials from a refresh token.
	// The previous credential set is replaced wholesale on success.
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)

	// Logout revokes the server-side session for the given access token.
	// Best effort: local state is cleared regardless of the outcome.
	Logout(ctx context.Context, accessToken string) error

	// VerifyMFA completes a pending login with a one-time code
	VerifyMFA(ctx context.Context, code string) (*Credentials, error)

	// HealthCheck verifies the issuer is reachable.
	// Useful for startup validation and readiness probes.
	HealthCheck(ctx context.Context) error
}
