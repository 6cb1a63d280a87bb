package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/promptforge/enhance-gateway/internal/agent"
	"github.com/promptforge/enhance-gateway/internal/config"
)

// enhanceBody is the accepted request shape. thread_id and thread_options
// also accept their camelCase aliases.
type enhanceBody struct {
	Prompt        string          `json:"prompt"`
	ThreadID      json.RawMessage `json:"thread_id"`
	ThreadIDAlt   json.RawMessage `json:"threadId"`
	ThreadOpts    json.RawMessage `json:"thread_options"`
	ThreadOptsAlt json.RawMessage `json:"threadOptions"`
}

// enhanceTurn is a validated, fully resolved enhance request.
type enhanceTurn struct {
	Prompt   string
	ThreadID string
	Options  agent.ThreadOptions
}

// requestError carries a pre-stream rejection.
type requestError struct {
	Status int
	Detail string
}

func (e *requestError) Error() string { return e.Detail }

func badRequest(detail string) *requestError {
	return &requestError{Status: http.StatusBadRequest, Detail: detail}
}

// decodeJSONBody reads the request body under the configured size ceiling.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) *requestError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{
				Status: http.StatusRequestEntityTooLarge,
				Detail: fmt.Sprintf("Request body is too large. Maximum %d bytes.", maxBytes),
			}
		}
		return badRequest("Failed to read request body.")
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest("Invalid JSON body.")
	}
	return nil
}

// stringOf returns the trimmed string value, or "" for any other shape.
func stringOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// buildEnhanceTurn validates the request body and resolves the turn's
// options. Validation happens before authentication so malformed or
// oversized input is rejected without consuming quota.
func buildEnhanceTurn(body *enhanceBody, cfg *config.Config) (*enhanceTurn, *requestError) {
	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		return nil, badRequest("Prompt is required.")
	}
	if len(prompt) > cfg.Limits.MaxPromptChars {
		return nil, &requestError{
			Status: http.StatusRequestEntityTooLarge,
			Detail: fmt.Sprintf("Prompt is too large. Maximum %d characters.", cfg.Limits.MaxPromptChars),
		}
	}

	threadIDPresent := len(body.ThreadID) > 0 || len(body.ThreadIDAlt) > 0
	threadID := stringOf(body.ThreadID)
	if threadID == "" {
		threadID = stringOf(body.ThreadIDAlt)
	}
	if threadIDPresent && threadID == "" {
		return nil, badRequest("thread_id must be a non-empty string when provided.")
	}

	rawOpts := body.ThreadOpts
	if len(rawOpts) == 0 {
		rawOpts = body.ThreadOptsAlt
	}
	overrides, err := agent.SanitizeOverrides(rawOpts)
	if err != nil {
		return nil, badRequest("thread_options must be an object when provided.")
	}

	return &enhanceTurn{
		Prompt:   prompt,
		ThreadID: threadID,
		Options:  agent.ResolveThreadOptions(cfg.Agent, overrides),
	}, nil
}
