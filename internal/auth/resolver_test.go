package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/promptforge/enhance-gateway/internal/config"
)

type stubVerifier struct {
	subject string
	err     error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	return s.subject, s.err
}

func resolverWith(cfg *config.Config, v TokenVerifier) *Resolver {
	return NewResolver(func() *config.Config { return cfg }, v)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Auth.ServiceToken = "svc-secret"
	cfg.Auth.PublicKeys = []string{"pk_live_abc123"}
	return cfg
}

func TestAuthenticate_ServiceToken(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{})

	h := http.Header{}
	h.Set(ServiceTokenHeader, "svc-secret")
	id, err := r.Authenticate(context.Background(), h, "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != "service" {
		t.Errorf("expected service principal, got %q", id.UserID)
	}
	if id.RateKey != "service:10.0.0.1" {
		t.Errorf("service traffic must be rate-keyed by IP, got %q", id.RateKey)
	}
}

func TestAuthenticate_ServiceTokenMismatch(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{})

	h := http.Header{}
	h.Set(ServiceTokenHeader, "wrong")
	_, err := r.Authenticate(context.Background(), h, "10.0.0.1")
	if !errors.Is(err, ErrInvalidServiceToken) {
		t.Fatalf("expected ErrInvalidServiceToken, got %v", err)
	}
	if status, _, _ := Classify(err); status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
}

func TestAuthenticate_PublicKeyBearer(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{err: errors.New("must not be called")})

	h := http.Header{}
	h.Set("Authorization", "Bearer pk_live_abc123")
	id, err := r.Authenticate(context.Background(), h, "192.0.2.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !id.IsPublicKey {
		t.Error("expected public-key identity")
	}
	if id.UserID != "" {
		t.Errorf("public access must be anonymous, got user %q", id.UserID)
	}
	if id.RateKey != "public:192.0.2.7" {
		t.Errorf("public traffic must be rate-keyed by IP, got %q", id.RateKey)
	}
}

func TestAuthenticate_APIKeyHeaderWithoutBearer(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{})

	h := http.Header{}
	h.Set(APIKeyHeader, "pk_live_abc123")
	id, err := r.Authenticate(context.Background(), h, "192.0.2.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !id.IsPublicKey {
		t.Error("expected public-key identity from apikey header")
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{})

	_, err := r.Authenticate(context.Background(), http.Header{}, "192.0.2.7")
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	status, msg, _ := Classify(err)
	if status != http.StatusUnauthorized || msg != "Missing bearer token." {
		t.Errorf("unexpected classification: %d %q", status, msg)
	}
}

func TestAuthenticate_ValidJWT(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{subject: "user-42"})

	h := http.Header{}
	h.Set("Authorization", "Bearer aaa.bbb.ccc")
	id, err := r.Authenticate(context.Background(), h, "192.0.2.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != "user-42" || id.RateKey != "user-42" {
		t.Errorf("authenticated users are rate-keyed by subject, got %+v", id)
	}
	if id.IsPublicKey {
		t.Error("JWT identity must not be marked public")
	}
}

func TestAuthenticate_NonJWTBearerRejected(t *testing.T) {
	r := resolverWith(testConfig(), &stubVerifier{subject: "user-42"})

	h := http.Header{}
	h.Set("Authorization", "Bearer some-opaque-token")
	_, err := r.Authenticate(context.Background(), h, "192.0.2.7")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticate_VerifierFailureClasses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not configured", ErrNotConfigured, http.StatusServiceUnavailable},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"invalid", ErrInvalidToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resolverWith(testConfig(), &stubVerifier{err: tt.err})
			h := http.Header{}
			h.Set("Authorization", "Bearer aaa.bbb.ccc")
			_, err := r.Authenticate(context.Background(), h, "192.0.2.7")
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if status, _, _ := Classify(err); status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
		})
	}
}

func TestParseBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Authorization", tt.header)
		}
		if got := parseBearerToken(h); got != tt.want {
			t.Errorf("parseBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
