package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/promptforge/enhance-gateway/internal/config"
)

// Resolver classifies a request's credential into an Identity.
//
// Resolution order, first match wins:
//  1. service shared secret header (exact match required when present)
//  2. configured publishable key (bearer or apikey header) -> anonymous
//  3. JWS-shaped bearer verified against the remote key set
//  4. failure
type Resolver struct {
	cfg      func() *config.Config
	verifier TokenVerifier
}

func NewResolver(cfg func() *config.Config, verifier TokenVerifier) *Resolver {
	return &Resolver{cfg: cfg, verifier: verifier}
}

// Authenticate resolves the request headers into an identity or a classified
// failure (see Classify).
func (r *Resolver) Authenticate(ctx context.Context, h http.Header, clientIP string) (*Identity, error) {
	cfg := r.cfg()

	if serviceToken := h.Get(ServiceTokenHeader); serviceToken != "" {
		if cfg.Auth.ServiceToken == "" || serviceToken != cfg.Auth.ServiceToken {
			return nil, ErrInvalidServiceToken
		}
		return serviceIdentity(clientIP), nil
	}

	bearer := parseBearerToken(h)
	apiKey := h.Get(APIKeyHeader)

	if bearer == "" {
		if isConfiguredPublicKey(apiKey, cfg.Auth.PublicKeys, cfg.Auth.StrictPublicKeys) {
			return publicIdentity(clientIP), nil
		}
		return nil, ErrMissingToken
	}

	if isConfiguredPublicKey(bearer, cfg.Auth.PublicKeys, cfg.Auth.StrictPublicKeys) {
		return publicIdentity(clientIP), nil
	}

	if !looksLikeJWT(bearer) {
		return nil, fmt.Errorf("%w: credential is not a signed token", ErrInvalidToken)
	}

	if r.verifier == nil {
		return nil, ErrNotConfigured
	}
	subject, err := r.verifier.Verify(ctx, bearer)
	if err != nil {
		return nil, err
	}
	return userIdentity(subject), nil
}
