package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero prompt limit", func(c *Config) { c.Limits.MaxPromptChars = 0 }, "max_prompt_chars"},
		{"negative per-minute", func(c *Config) { c.Limits.EnhancePerMinute = -1 }, "enhance_per_minute"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"negative backoff", func(c *Config) { c.Retry.BackoffBaseSeconds = -0.5 }, "backoff_base_seconds"},
		{"bad sandbox mode", func(c *Config) { c.Agent.SandboxMode = "yolo" }, "sandbox_mode"},
		{"bad reasoning effort", func(c *Config) { c.Agent.ReasoningEffort = "extreme" }, "reasoning_effort"},
		{"bad approval policy", func(c *Config) { c.Agent.ApprovalPolicy = "always" }, "approval_policy"},
		{"empty agent binary", func(c *Config) { c.Agent.Binary = "" }, "agent.binary"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad log level", func(c *Config) { c.Telemetry.LogLevel = "verbose" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoader_KeepsOldConfigOnInvalidReload(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString("server:\n  port: 9999\n"); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	l := NewLoader(tmpFile.Name(), discardLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.Config().Server.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", l.Config().Server.Port)
	}

	if err := os.WriteFile(tmpFile.Name(), []byte("limits:\n  max_prompt_chars: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(); err == nil {
		t.Fatal("expected reload of invalid config to fail")
	}
	if l.Config().Server.Port != 9999 {
		t.Error("invalid reload must not replace the previous config")
	}
}

func TestResolvedJWKSURL(t *testing.T) {
	a := AuthConfig{IssuerURL: "https://auth.example.com/"}
	if got := a.ResolvedJWKSURL(); got != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("unexpected derived JWKS URL: %s", got)
	}
	a.JWKSURL = "https://keys.example.com/jwks.json"
	if got := a.ResolvedJWKSURL(); got != "https://keys.example.com/jwks.json" {
		t.Errorf("explicit JWKS URL should win, got %s", got)
	}
	if got := (AuthConfig{}).ResolvedJWKSURL(); got != "" {
		t.Errorf("expected empty URL when unconfigured, got %s", got)
	}
}

func TestCORSAllowAny(t *testing.T) {
	tests := []struct {
		origins []string
		want    bool
	}{
		{nil, true},
		{[]string{"*"}, true},
		{[]string{"any"}, true},
		{[]string{"https://promptforge.app"}, false},
		{[]string{"https://a.example", "https://b.example"}, false},
	}
	for _, tt := range tests {
		c := CORSConfig{AllowedOrigins: tt.origins}
		if got := c.AllowAny(); got != tt.want {
			t.Errorf("AllowAny(%v) = %v, want %v", tt.origins, got, tt.want)
		}
	}
}
