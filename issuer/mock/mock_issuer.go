// Package mock provides a mock implementation of the Issuer interface for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/God-Lion/seeker-authcore/issuer"
)

// Compile-time check that MockIssuer implements the Issuer interface.
var _ issuer.Issuer = (*MockIssuer)(nil)

// MockIssuer is a mock implementation of the Issuer interface for testing
type MockIssuer struct {
	// LoginFunc is called when Login() is invoked
	LoginFunc func(ctx context.Context, email, password, captchaToken string) (*issuer.Credentials, error)

	// RefreshFunc is called when Refresh() is invoked
	RefreshFunc func(ctx context.Context, refreshToken string) (*issuer.Credentials, error)

	// LogoutFunc is called when Logout() is invoked
	LogoutFunc func(ctx context.Context, accessToken string) error

	// VerifyMFAFunc is called when VerifyMFA() is invoked
	VerifyMFAFunc func(ctx context.Context, code string) (*issuer.Credentials, error)

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.Mutex
}

// NewMockIssuer creates a new mock issuer with default implementations
func NewMockIssuer() *MockIssuer {
	return &MockIssuer{
		CallCounts: make(map[string]int),
		LoginFunc: func(ctx context.Context, email, password, captchaToken string) (*issuer.Credentials, error) {
			return &issuer.Credentials{
				AccessToken:  "mock-access-token",
				RefreshToken: "mock-refresh-token",
				ExpiresAt:    time.Now().Add(time.Hour),
				UserID:       "mock-user-123",
				UserEmail:    email,
			}, nil
		},
		RefreshFunc: func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
			return &issuer.Credentials{
				AccessToken:  "new-mock-access-token",
				RefreshToken: "new-mock-refresh-token",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		LogoutFunc: func(ctx context.Context, accessToken string) error {
			return nil
		},
		VerifyMFAFunc: func(ctx context.Context, code string) (*issuer.Credentials, error) {
			return &issuer.Credentials{
				AccessToken:  "mfa-access-token",
				RefreshToken: "mfa-refresh-token",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

func (m *MockIssuer) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CallCounts == nil {
		m.CallCounts = make(map[string]int)
	}
	m.CallCounts[method]++
}

// Calls returns how many times the given method was invoked
func (m *MockIssuer) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}

// Login implements the Issuer interface
func (m *MockIssuer) Login(ctx context.Context, email, password, captchaToken string) (*issuer.Credentials, error) {
	m.record("Login")
	return m.LoginFunc(ctx, email, password, captchaToken)
}

// Refresh implements the Issuer interface
func (m *MockIssuer) Refresh(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
	m.record("Refresh")
	return m.RefreshFunc(ctx, refreshToken)
}

// Logout implements the Issuer interface
func (m *MockIssuer) Logout(ctx context.Context, accessToken string) error {
	m.record("Logout")
	return m.LogoutFunc(ctx, accessToken)
}

// VerifyMFA implements the Issuer interface
func (m *MockIssuer) VerifyMFA(ctx context.Context, code string) (*issuer.Credentials, error) {
	m.record("VerifyMFA")
	return m.VerifyMFAFunc(ctx, code)
}

// HealthCheck implements the Issuer interface
func (m *MockIssuer) HealthCheck(ctx context.Context) error {
	m.record("HealthCheck")
	return m.HealthCheckFunc(ctx)
}
