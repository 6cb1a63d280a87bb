package gateway

import (
	"net/http"
	"strings"

	"github.com/promptforge/enhance-gateway/internal/config"
)

const allowedCORSHeaders = "authorization, x-client-info, apikey, content-type, x-agent-token, x-request-id"

func baseCORSHeaders(origin string) http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Headers", allowedCORSHeaders)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Max-Age", "86400")
	h.Set("Vary", "Origin")
	return h
}

// resolveCORS checks the request origin against the allow-list. A request
// without an Origin header is not a browser request and always passes.
func resolveCORS(r *http.Request, cfg config.CORSConfig) (http.Header, bool) {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return baseCORSHeaders("null"), true
	}
	if !cfg.AllowAny() {
		allowed := false
		for _, o := range cfg.AllowedOrigins {
			if strings.TrimSpace(o) == origin {
				allowed = true
				break
			}
		}
		if !allowed {
			return baseCORSHeaders("null"), false
		}
	}
	return baseCORSHeaders(origin), true
}

func applyHeaders(w http.ResponseWriter, h http.Header) {
	for key, values := range h {
		for _, v := range values {
			w.Header().Set(key, v)
		}
	}
}
