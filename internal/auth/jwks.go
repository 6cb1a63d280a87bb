package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// JWKSVerifier validates signed tokens against a remote key set. The key set
// is registered lazily on first use and cached for the process lifetime;
// refreshes happen in the background per the JWKS endpoint's cache headers.
type JWKSVerifier struct {
	jwksURL string
	issuer  string
	timeout time.Duration

	mu    sync.Mutex
	cache *jwk.Cache
}

func NewJWKSVerifier(jwksURL, issuer string, timeout time.Duration) *JWKSVerifier {
	return &JWKSVerifier{
		jwksURL: jwksURL,
		issuer:  issuer,
		timeout: timeout,
	}
}

func (v *JWKSVerifier) keySet(ctx context.Context) (jwk.Set, error) {
	v.mu.Lock()
	if v.cache == nil {
		// The cache's refresh goroutine outlives individual requests.
		cache, err := jwk.NewCache(context.Background(), httprc.NewClient(
			httprc.WithHTTPClient(&http.Client{Timeout: v.timeout}),
		))
		if err != nil {
			v.mu.Unlock()
			return nil, fmt.Errorf("create jwks cache: %w", err)
		}
		if err := cache.Register(ctx, v.jwksURL); err != nil {
			v.mu.Unlock()
			return nil, fmt.Errorf("register jwks url: %w", err)
		}
		v.cache = cache
	}
	cache := v.cache
	v.mu.Unlock()

	set, err := cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return set, nil
}

// Verify checks the token signature and claims and returns the subject.
// Failures are classified: ErrNotConfigured when no JWKS URL is set,
// ErrUnavailable when the key set cannot be fetched, ErrInvalidToken for
// everything else (bad signature, expired, wrong issuer, empty subject).
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (string, error) {
	if v.jwksURL == "" {
		return "", ErrNotConfigured
	}

	set, err := v.keySet(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var subject string
	if err := tok.Get(jwt.SubjectKey, &subject); err != nil {
		return "", fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject claim", ErrInvalidToken)
	}
	return subject, nil
}
