package auth

import "strings"

var publishablePrefixes = []string{"sb_publishable_", "pk_live_", "pk_test_"}

// IsPublishableKeyShape reports whether a credential carries one of the
// well-known publishable-key prefixes.
func IsPublishableKeyShape(v string) bool {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return false
	}
	for _, p := range publishablePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// isConfiguredPublicKey matches a credential against the configured public
// key set. When no keys are configured and strict mode is off, a
// publishable-shaped key is accepted instead.
func isConfiguredPublicKey(v string, configured []string, strict bool) bool {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return false
	}
	for _, k := range configured {
		if trimmed == k {
			return true
		}
	}
	if len(configured) > 0 {
		return false
	}
	if strict {
		return false
	}
	return IsPublishableKeyShape(trimmed)
}
