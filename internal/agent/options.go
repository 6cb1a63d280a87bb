package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/promptforge/enhance-gateway/internal/config"
)

// ErrInvalidThreadOptions marks a present-but-malformed thread_options value
// (an array, a scalar, unparsable JSON). Absent input is not an error.
var ErrInvalidThreadOptions = errors.New("thread_options must be an object")

// Overrides are the client-adjustable knobs that survive sanitization.
// Unknown fields are dropped silently for forward compatibility.
type Overrides struct {
	ReasoningEffort  string
	WebSearchEnabled *bool
}

// ThreadOptions is the full per-turn configuration handed to the runtime:
// server defaults with any sanitized overrides applied on top.
type ThreadOptions struct {
	Model            string
	SandboxMode      string
	ReasoningEffort  string
	ReasoningSummary string
	ApprovalPolicy   string
	WebSearchEnabled bool
	WorkingDirectory string
	SkipGitRepoCheck bool
}

// SanitizeOverrides filters a raw client-supplied thread_options value down
// to the recognized overrides. nil or JSON null means "no overrides".
func SanitizeOverrides(raw json.RawMessage) (Overrides, error) {
	var out Overrides

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	if trimmed[0] != '{' {
		return out, ErrInvalidThreadOptions
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return out, ErrInvalidThreadOptions
	}

	if raw, ok := fields["modelReasoningEffort"]; ok {
		var effort string
		if err := json.Unmarshal(raw, &effort); err == nil {
			effort = strings.ToLower(strings.TrimSpace(effort))
			if config.ValidReasoningEffort(effort) {
				out.ReasoningEffort = effort
			}
		}
	}

	if raw, ok := fields["webSearchEnabled"]; ok {
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err == nil {
			out.WebSearchEnabled = &enabled
		}
	}

	return out, nil
}

// ResolveThreadOptions merges sanitized overrides onto the configured
// defaults. Client input is additive and bounded, never a full replacement.
func ResolveThreadOptions(cfg config.AgentConfig, ov Overrides) ThreadOptions {
	opts := ThreadOptions{
		Model:            cfg.Model,
		SandboxMode:      cfg.SandboxMode,
		ReasoningEffort:  cfg.ReasoningEffort,
		ReasoningSummary: cfg.ReasoningSummary,
		ApprovalPolicy:   cfg.ApprovalPolicy,
		WebSearchEnabled: cfg.WebSearchEnabled,
		WorkingDirectory: cfg.WorkingDirectory,
		SkipGitRepoCheck: cfg.SkipGitRepoCheck,
	}
	if ov.ReasoningEffort != "" {
		opts.ReasoningEffort = ov.ReasoningEffort
	}
	if ov.WebSearchEnabled != nil {
		opts.WebSearchEnabled = *ov.WebSearchEnabled
	}
	return opts
}
