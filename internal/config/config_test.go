package config

import (
	"errors"
	"testing"
	"time"
)

// validConfig returns a config that passes validation.
func validConfig() *Config {
	cfg := NewConfig()
	cfg.Target = "http://grc.example.com"
	cfg.Credentials = []Credential{{Username: "admin", Password: "secret"}}
	return cfg
}

// TestNewConfig tests default values.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.Timeout != 15*time.Second {
		t.Errorf("expected default timeout 15s, got %s", cfg.Timeout)
	}
	if cfg.RequestDelay != 1*time.Second {
		t.Errorf("expected default delay 1s, got %s", cfg.RequestDelay)
	}
	if cfg.MaxPages != 200 {
		t.Errorf("expected default max pages 200, got %d", cfg.MaxPages)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.LoginPath != "/login" {
		t.Errorf("expected default login path '/login', got %q", cfg.LoginPath)
	}
	if cfg.AuthPath != "/auth/login" {
		t.Errorf("expected default auth path '/auth/login', got %q", cfg.AuthPath)
	}
	if cfg.VerifyPath != "/dashboard" {
		t.Errorf("expected default verify path '/dashboard', got %q", cfg.VerifyPath)
	}
	if cfg.SessionCookie != "aria_token" {
		t.Errorf("expected default session cookie 'aria_token', got %q", cfg.SessionCookie)
	}
	if len(cfg.SkipPatterns) == 0 {
		t.Error("expected default skip patterns")
	}
}

// TestConfigValidate tests configuration validation.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid config passes",
			mutate:  func(_ *Config) {},
			wantErr: nil,
		},
		{
			name:    "missing target",
			mutate:  func(c *Config) { c.Target = "" },
			wantErr: ErrNoTarget,
		},
		{
			name:    "missing credentials",
			mutate:  func(c *Config) { c.Credentials = nil },
			wantErr: ErrNoCredentials,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative request delay",
			mutate:  func(c *Config) { c.RequestDelay = -1 * time.Second },
			wantErr: ErrInvalidRequestDelay,
		},
		{
			name:    "zero delay is allowed",
			mutate:  func(c *Config) { c.RequestDelay = 0 },
			wantErr: nil,
		},
		{
			name:    "zero max pages",
			mutate:  func(c *Config) { c.MaxPages = 0 },
			wantErr: ErrInvalidMaxPages,
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.MaxRetries = 0 },
			wantErr: ErrInvalidMaxRetries,
		},
		{
			name:    "negative max body size",
			mutate:  func(c *Config) { c.MaxBodySize = -1 },
			wantErr: ErrInvalidMaxBodySize,
		},
		{
			name: "conflicting report formats",
			mutate: func(c *Config) {
				c.JSONReport = true
				c.MarkdownReport = true
			},
			wantErr: ErrConflictingReportFormats,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestXDGDirs tests the XDG directory helpers.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if XDGDataDir() == "" {
		t.Error("expected non-empty data dir")
	}
	if XDGConfigDir() == "" {
		t.Error("expected non-empty config dir")
	}
}
