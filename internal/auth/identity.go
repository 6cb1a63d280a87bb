package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Identity is the result of authenticating one request. It lives for the
// request's duration and is never persisted.
type Identity struct {
	// UserID is the authenticated subject, "service" for the shared-secret
	// principal, or "" for anonymous public-key access.
	UserID      string
	IsPublicKey bool
	// RateKey buckets quota. Authenticated users are keyed by subject;
	// service and public-key traffic is keyed by client IP so one identity
	// cannot starve everyone else.
	RateKey string
}

// Failure classes. The caller maps these to HTTP statuses; the 503 classes
// signal "retry with a different credential" to upstream callers.
var (
	ErrMissingToken        = errors.New("missing bearer token")
	ErrInvalidToken        = errors.New("invalid or expired auth session")
	ErrInvalidServiceToken = errors.New("invalid or missing service token")
	ErrNotConfigured       = errors.New("auth is not configured")
	ErrUnavailable         = errors.New("auth service unavailable")
)

// Classify maps a resolution failure to an HTTP status, a client-facing
// message, and a metrics class.
func Classify(err error) (status int, message, class string) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable,
			"Authentication service is unavailable because auth is not configured.",
			"not_configured"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable,
			"Authentication service is temporarily unavailable. Please try again.",
			"unavailable"
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, "Missing bearer token.", "missing"
	case errors.Is(err, ErrInvalidServiceToken):
		return http.StatusUnauthorized, "Invalid or missing service token.", "invalid"
	default:
		return http.StatusUnauthorized, "Invalid or expired auth session.", "invalid"
	}
}

// TokenVerifier validates a signed bearer token and returns its subject.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ServiceTokenHeader carries the service-level shared secret.
const ServiceTokenHeader = "X-Agent-Token"

// APIKeyHeader carries a publishable key for clients that cannot set an
// Authorization header.
const APIKeyHeader = "Apikey"

func parseBearerToken(h http.Header) string {
	raw := strings.TrimSpace(h.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// looksLikeJWT reports whether the credential has the syntactic shape of a
// signed token: three dot-separated segments.
func looksLikeJWT(v string) bool {
	return len(strings.Split(v, ".")) == 3
}

func serviceIdentity(clientIP string) *Identity {
	return &Identity{
		UserID:  "service",
		RateKey: fmt.Sprintf("service:%s", clientIP),
	}
}

func publicIdentity(clientIP string) *Identity {
	return &Identity{
		IsPublicKey: true,
		RateKey:     fmt.Sprintf("public:%s", clientIP),
	}
}

func userIdentity(subject string) *Identity {
	return &Identity{
		UserID:  subject,
		RateKey: subject,
	}
}
