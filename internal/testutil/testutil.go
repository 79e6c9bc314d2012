// Package testutil provides fixtures shared by the session core test
// suites: canned credentials in the shapes the issuer and stores exchange.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/God-Lion/seeker-authcore/issuer"
)

// TestCredentials returns issuer credentials expiring an hour from now.
func TestCredentials() *issuer.Credentials {
	return &issuer.Credentials{
		AccessToken:  "test-access-" + GenerateRandomString(16),
		RefreshToken: "test-refresh-" + GenerateRandomString(16),
		ExpiresAt:    time.Now().Add(time.Hour),
		UserID:       "user-123",
		UserEmail:    "user@example.com",
	}
}

// ExpiredCredentials returns issuer credentials that expired an hour ago.
func ExpiredCredentials() *issuer.Credentials {
	creds := TestCredentials()
	creds.ExpiresAt = time.Now().Add(-time.Hour)
	return creds
}

// GenerateRandomString returns a URL-safe random string of roughly the given
// length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("testutil: rand.Read: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}
