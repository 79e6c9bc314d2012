package authcore

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Token.ExpiryBuffer != DefaultExpiryBuffer {
		t.Errorf("ExpiryBuffer = %v, want %v", cfg.Token.ExpiryBuffer, DefaultExpiryBuffer)
	}
	if cfg.Refresh.Timeout != DefaultRefreshTimeout {
		t.Errorf("Refresh.Timeout = %v, want %v", cfg.Refresh.Timeout, DefaultRefreshTimeout)
	}
	if cfg.Retry.MaxAttempts != DefaultMaxRetries {
		t.Errorf("MaxAttempts = %d, want %d", cfg.Retry.MaxAttempts, DefaultMaxRetries)
	}
	if cfg.SignInRoute != DefaultSignInRoute {
		t.Errorf("SignInRoute = %q, want %q", cfg.SignInRoute, DefaultSignInRoute)
	}
	if len(cfg.Throttle.LockoutThresholds) != 3 {
		t.Errorf("LockoutThresholds = %v", cfg.Throttle.LockoutThresholds)
	}
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Token.ExpiryBuffer != DefaultExpiryBuffer {
		t.Errorf("ExpiryBuffer not defaulted: %v", cfg.Token.ExpiryBuffer)
	}
	if cfg.Retry.BaseDelay != DefaultRetryBaseDelay {
		t.Errorf("BaseDelay not defaulted: %v", cfg.Retry.BaseDelay)
	}
	if len(cfg.Retry.RetryableStatuses) == 0 {
		t.Error("RetryableStatuses not defaulted")
	}
	if cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}
	if cfg.SignInRoute != DefaultSignInRoute {
		t.Errorf("SignInRoute not defaulted: %q", cfg.SignInRoute)
	}
}

func TestValidateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative expiry buffer", func(c *Config) { c.Token.ExpiryBuffer = -time.Second }},
		{"negative refresh timeout", func(c *Config) { c.Refresh.Timeout = -time.Second }},
		{"negative max retries", func(c *Config) { c.Retry.MaxAttempts = -1 }},
		{"invalid retryable status", func(c *Config) { c.Retry.RetryableStatuses = []int{99} }},
		{"mismatched lockout tables", func(c *Config) {
			c.Throttle.LockoutThresholds = []int{3, 5}
			c.Throttle.LockoutDurations = []time.Duration{time.Minute}
		}},
		{"descending thresholds", func(c *Config) {
			c.Throttle.LockoutThresholds = []int{5, 3}
			c.Throttle.LockoutDurations = []time.Duration{time.Minute, time.Hour}
		}},
		{"negative pacing", func(c *Config) { c.Pacing.Rate = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}
