package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
	Retry     RetryConfig     `yaml:"retry"`
	Agent     AgentConfig     `yaml:"agent"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	TrustProxy       bool          `yaml:"trust_proxy"`
}

type CORSConfig struct {
	// AllowedOrigins is the allow-list. Empty, or a single "*"/"any" entry,
	// means any origin is allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AllowAny reports whether the allow-list is open.
func (c CORSConfig) AllowAny() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	if len(c.AllowedOrigins) == 1 {
		v := strings.ToLower(strings.TrimSpace(c.AllowedOrigins[0]))
		return v == "*" || v == "any"
	}
	return false
}

type AuthConfig struct {
	// IssuerURL is the token issuer; its value is asserted against the "iss"
	// claim when set. JWKSURL defaults to <issuer>/.well-known/jwks.json.
	IssuerURL string `yaml:"issuer_url"`
	JWKSURL   string `yaml:"jwks_url"`
	// ServiceToken is the shared secret accepted in the X-Agent-Token header.
	ServiceToken string `yaml:"service_token"`
	// PublicKeys are publishable API keys granted anonymous access.
	PublicKeys []string `yaml:"public_keys"`
	// StrictPublicKeys disables shape-based matching of publishable keys when
	// no explicit keys are configured.
	StrictPublicKeys bool          `yaml:"strict_public_keys"`
	JWKSTimeout      time.Duration `yaml:"jwks_timeout"`
}

// ResolvedJWKSURL returns the explicit JWKS URL, or one derived from the
// issuer URL, or "" when neither is configured.
func (a AuthConfig) ResolvedJWKSURL() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	if a.IssuerURL != "" {
		return strings.TrimRight(a.IssuerURL, "/") + "/.well-known/jwks.json"
	}
	return ""
}

type LimitsConfig struct {
	MaxPromptChars      int   `yaml:"max_prompt_chars"`
	MaxInferPromptChars int   `yaml:"max_infer_prompt_chars"`
	MaxBodyBytes        int64 `yaml:"max_body_bytes"`

	EnhancePerMinute int `yaml:"enhance_per_minute"`
	EnhancePerDay    int `yaml:"enhance_per_day"`
	InferPerMinute   int `yaml:"infer_per_minute"`
	InferPerDay      int `yaml:"infer_per_day"`

	WSMaxConnectionsPerIP int           `yaml:"ws_max_connections_per_ip"`
	WSStartTimeout        time.Duration `yaml:"ws_start_timeout"`
	WSMaxPayloadBytes     int64         `yaml:"ws_max_payload_bytes"`
}

type RetryConfig struct {
	// MaxRetries bounds retries of a turn that failed with upstream overload
	// before any event was observed.
	MaxRetries         int     `yaml:"max_retries"`
	BackoffBaseSeconds float64 `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds  float64 `yaml:"backoff_max_seconds"`
}

type AgentConfig struct {
	// Binary is the agent CLI executable invoked per turn.
	Binary           string   `yaml:"binary"`
	Model            string   `yaml:"model"`
	SandboxMode      string   `yaml:"sandbox_mode"`
	ReasoningEffort  string   `yaml:"reasoning_effort"`
	ReasoningSummary string   `yaml:"reasoning_summary"`
	WebSearchEnabled bool     `yaml:"web_search_enabled"`
	WorkingDirectory string   `yaml:"working_directory"`
	SkipGitRepoCheck bool     `yaml:"skip_git_repo_check"`
	ApprovalPolicy   string   `yaml:"approval_policy"`
	ExtraArgs        []string `yaml:"extra_args"`
}

type RedisConfig struct {
	// Address enables the shared rate-limit backend when set.
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel string `yaml:"log_level"`
}

var (
	sandboxModes       = map[string]bool{"read-only": true, "workspace-write": true, "danger-full-access": true}
	reasoningEfforts   = map[string]bool{"minimal": true, "low": true, "medium": true, "high": true, "xhigh": true}
	reasoningSummaries = map[string]bool{"auto": true, "concise": true, "detailed": true}
	approvalPolicies   = map[string]bool{"never": true, "on-request": true, "on-failure": true, "untrusted": true}
	logLevels          = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// ValidReasoningEffort reports whether v is a recognized reasoning effort level.
func ValidReasoningEffort(v string) bool { return reasoningEfforts[v] }

// Validate rejects malformed options. It runs once at startup; any failure
// here aborts the process rather than silently defaulting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Limits.MaxPromptChars <= 0 {
		return fmt.Errorf("limits.max_prompt_chars must be a positive integer, got %d", c.Limits.MaxPromptChars)
	}
	if c.Limits.MaxInferPromptChars <= 0 {
		return fmt.Errorf("limits.max_infer_prompt_chars must be a positive integer, got %d", c.Limits.MaxInferPromptChars)
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return fmt.Errorf("limits.max_body_bytes must be a positive integer, got %d", c.Limits.MaxBodyBytes)
	}
	for name, v := range map[string]int{
		"limits.enhance_per_minute": c.Limits.EnhancePerMinute,
		"limits.enhance_per_day":    c.Limits.EnhancePerDay,
		"limits.infer_per_minute":   c.Limits.InferPerMinute,
		"limits.infer_per_day":      c.Limits.InferPerDay,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %d", name, v)
		}
	}
	if c.Limits.WSMaxConnectionsPerIP <= 0 {
		return fmt.Errorf("limits.ws_max_connections_per_ip must be a positive integer, got %d", c.Limits.WSMaxConnectionsPerIP)
	}
	if c.Limits.WSStartTimeout <= 0 {
		return fmt.Errorf("limits.ws_start_timeout must be a positive duration, got %s", c.Limits.WSStartTimeout)
	}
	if c.Limits.WSMaxPayloadBytes <= 0 {
		return fmt.Errorf("limits.ws_max_payload_bytes must be a positive integer, got %d", c.Limits.WSMaxPayloadBytes)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be a non-negative integer, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffBaseSeconds < 0 {
		return fmt.Errorf("retry.backoff_base_seconds must be a non-negative number, got %v", c.Retry.BackoffBaseSeconds)
	}
	if c.Retry.BackoffMaxSeconds < 0 {
		return fmt.Errorf("retry.backoff_max_seconds must be a non-negative number, got %v", c.Retry.BackoffMaxSeconds)
	}
	if c.Auth.JWKSTimeout <= 0 {
		return fmt.Errorf("auth.jwks_timeout must be a positive duration, got %s", c.Auth.JWKSTimeout)
	}
	if c.Agent.Binary == "" {
		return fmt.Errorf("agent.binary must not be empty")
	}
	if m := c.Agent.SandboxMode; m != "" && !sandboxModes[m] {
		return fmt.Errorf("agent.sandbox_mode has invalid value %q", m)
	}
	if e := c.Agent.ReasoningEffort; e != "" && !reasoningEfforts[e] {
		return fmt.Errorf("agent.reasoning_effort has invalid value %q", e)
	}
	if s := c.Agent.ReasoningSummary; s != "" && !reasoningSummaries[s] {
		return fmt.Errorf("agent.reasoning_summary has invalid value %q", s)
	}
	if p := c.Agent.ApprovalPolicy; p != "" && !approvalPolicies[p] {
		return fmt.Errorf("agent.approval_policy has invalid value %q", p)
	}
	if l := c.Telemetry.LogLevel; l != "" && !logLevels[strings.ToLower(l)] {
		return fmt.Errorf("telemetry.log_level has invalid value %q", l)
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8001,
			ReadTimeout:      30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWKSTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxPromptChars:      16000,
			MaxInferPromptChars: 12000,
			MaxBodyBytes:        256 * 1024,

			EnhancePerMinute: 12,
			EnhancePerDay:    300,
			InferPerMinute:   15,
			InferPerDay:      400,

			WSMaxConnectionsPerIP: 10,
			WSStartTimeout:        5 * time.Second,
			WSMaxPayloadBytes:     64 * 1024,
		},
		Retry: RetryConfig{
			MaxRetries:         2,
			BackoffBaseSeconds: 1.0,
			BackoffMaxSeconds:  20.0,
		},
		Agent: AgentConfig{
			Binary:           "codex",
			Model:            "gpt-5.2",
			SandboxMode:      "read-only",
			ReasoningEffort:  "high",
			ReasoningSummary: "detailed",
			ApprovalPolicy:   "never",
		},
		Redis: RedisConfig{
			PoolSize: 50,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}
