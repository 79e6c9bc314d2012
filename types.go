package authcore

// LoginRequest is the credential payload sent to the issuer's login endpoint
type LoginRequest struct {
	// Email is the account identifier
	Email string `json:"email"`

	// Password is the account password
	Password string `json:"password"`

	// CaptchaToken carries a solved challenge when the throttle guard
	// requires one. Empty otherwise.
	CaptchaToken string `json:"captcha_token,omitempty"`
}

// MFAVerifyRequest is the payload sent to the issuer's MFA verification endpoint
type MFAVerifyRequest struct {
	// Code is the one-time code from the user's authenticator
	Code string `json:"code"`
}

// SessionResponse represents a credential-issuing response from the issuer
// (login, MFA verification, OAuth exchange).
type SessionResponse struct {
	// Token is the access token. Some deployments name this field
	// "access_token"; both are accepted on decode.
	Token string `json:"token"`

	// AccessToken is the alternate key for the access token
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the refresh token
	RefreshToken string `json:"refresh_token"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int64 `json:"expires_in"`

	// User is the authenticated account, when the issuer returns it
	User *User `json:"user,omitempty"`

	// MFARequired indicates the login is pending MFA verification
	MFARequired bool `json:"mfa_required,omitempty"`
}

// Bearer returns the access token regardless of which response key carried it
func (r *SessionResponse) Bearer() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// LogoutResponse represents the issuer's logout acknowledgement
type LogoutResponse struct {
	// Message is a human-readable acknowledgement
	Message string `json:"message,omitempty"`

	// Success indicates whether the server-side session was revoked
	Success bool `json:"success"`
}

// User represents the authenticated account as returned by the issuer
type User struct {
	// ID is the unique account identifier
	ID string `json:"id"`

	// Email is the account email address
	Email string `json:"email"`

	// Name is the account display name
	Name string `json:"name,omitempty"`

	// Role is the platform role (e.g., "seeker", "employer", "admin")
	Role string `json:"role,omitempty"`

	// MFAEnabled indicates whether the account has MFA configured
	MFAEnabled bool `json:"mfa_enabled,omitempty"`
}
