package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptforge/enhance-gateway/internal/agent"
	"github.com/promptforge/enhance-gateway/internal/auth"
	"github.com/promptforge/enhance-gateway/internal/config"
	"github.com/promptforge/enhance-gateway/internal/httputil"
	"github.com/promptforge/enhance-gateway/internal/ratelimit"
	"github.com/promptforge/enhance-gateway/internal/stream"
	"github.com/promptforge/enhance-gateway/internal/telemetry"
)

// TurnInvoker starts upstream turns. Satisfied by *agent.Invoker.
type TurnInvoker interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (agent.EventStream, error)
}

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	cfg      func() *config.Config
	resolver *auth.Resolver
	limiter  *ratelimit.Limiter
	invoker  TurnInvoker
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	wsConns *wsConnTracker
}

func NewHandler(cfg func() *config.Config, resolver *auth.Resolver, limiter *ratelimit.Limiter, invoker TurnInvoker, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		resolver: resolver,
		limiter:  limiter,
		invoker:  invoker,
		metrics:  metrics,
		logger:   logger,
		wsConns:  newWSConnTracker(),
	}
}

// Routes mounts all gateway endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.ServiceInfo)
	r.Get("/health", h.Health)
	r.Get("/enhance/ws", h.EnhanceWS)

	for _, path := range []string{"/enhance", "/infer-builder-fields"} {
		r.Options(path, h.preflight)
	}
	r.Post("/enhance", h.Enhance)
	r.Post("/infer-builder-fields", h.InferBuilderFields)
}

// ServiceInfo handles GET /
func (h *Handler) ServiceInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, requestID(w), http.StatusOK, map[string]any{
		"service": "enhance-gateway",
		"status":  "running",
		"health":  "/health",
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg()
	httputil.WriteJSON(w, requestID(w), http.StatusOK, map[string]any{
		"ok":                true,
		"model":             cfg.Agent.Model,
		"sandbox_mode":      cfg.Agent.SandboxMode,
		"strict_public_key": cfg.Auth.StrictPublicKeys,
		"trust_proxy":       cfg.Server.TrustProxy,
	})
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	headers, ok := resolveCORS(r, h.cfg().CORS)
	applyHeaders(w, headers)
	if !ok {
		httputil.WriteForbiddenError(w, requestID(w), "Origin is not allowed.")
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// Enhance handles POST /enhance: validate, authenticate, rate-limit, then
// stream the translated upstream turn as server-sent events.
func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	receivedAt := time.Now()
	cfg := h.cfg()

	status := h.serveEnhance(w, r, reqID, cfg)
	if h.metrics != nil {
		h.metrics.RecordRequest("/enhance", strconv.Itoa(status), float64(time.Since(receivedAt).Milliseconds()))
	}
}

func (h *Handler) serveEnhance(w http.ResponseWriter, r *http.Request, reqID string, cfg *config.Config) int {
	corsHeaders, ok := resolveCORS(r, cfg.CORS)
	applyHeaders(w, corsHeaders)
	if !ok {
		httputil.WriteForbiddenError(w, reqID, "Origin is not allowed.")
		return http.StatusForbidden
	}

	// Input validation runs before authentication: malformed or oversized
	// requests are rejected without touching auth or quota.
	var body enhanceBody
	if rerr := decodeJSONBody(w, r, cfg.Limits.MaxBodyBytes, &body); rerr != nil {
		httputil.WriteDetail(w, reqID, rerr.Status, rerr.Detail)
		return rerr.Status
	}
	turn, rerr := buildEnhanceTurn(&body, cfg)
	if rerr != nil {
		httputil.WriteDetail(w, reqID, rerr.Status, rerr.Detail)
		return rerr.Status
	}

	clientIP := clientIP(r)
	identity, err := h.resolver.Authenticate(r.Context(), r.Header, clientIP)
	if err != nil {
		status, message, class := auth.Classify(err)
		if h.metrics != nil {
			h.metrics.RecordAuthFailure(class)
		}
		h.writeAuthFailure(w, reqID, status, message)
		return status
	}

	quota := ratelimit.Quota{
		Op:        "enhance",
		PerMinute: int64(cfg.Limits.EnhancePerMinute),
		PerDay:    int64(cfg.Limits.EnhancePerDay),
	}
	if status := h.enforceQuota(w, r, reqID, quota, identity.RateKey, clientIP); status != 0 {
		return status
	}

	h.logger.Info("enhance stream starting",
		"request_id", reqID,
		"thread_id", turn.ThreadID,
		"public", identity.IsPublicKey,
	)

	beginSSE(w)
	h.streamTurn(r.Context(), w, reqID, turn)
	return http.StatusOK
}

func (h *Handler) writeAuthFailure(w http.ResponseWriter, reqID string, status int, message string) {
	if status == http.StatusServiceUnavailable {
		httputil.WriteAuthUnavailableError(w, reqID, message)
		return
	}
	httputil.WriteAuthError(w, reqID, message)
}

// enforceQuota applies both windows; a non-zero return is the status already
// written to the client.
func (h *Handler) enforceQuota(w http.ResponseWriter, r *http.Request, reqID string, quota ratelimit.Quota, rateKey, clientIP string) int {
	decision, err := h.limiter.Check(r.Context(), quota, rateKey, clientIP)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Rate limit check failed.")
		return http.StatusInternalServerError
	}
	if decision.Allowed {
		return 0
	}
	if h.metrics != nil {
		h.metrics.RecordRateLimitHit(quota.Op + ":" + decision.Window)
	}
	message := "Rate limit exceeded. Please try again later."
	if decision.Window == "day" {
		message = "Daily quota exceeded. Please try again tomorrow."
	}
	httputil.WriteRateLimitError(w, reqID, int(decision.RetryAfterSeconds), message)
	return http.StatusTooManyRequests
}

// streamTurn runs the upstream turn and relays translated events until the
// stream ends or the client disconnects. The context is the request context,
// so a disconnect cancels the upstream subprocess.
func (h *Handler) streamTurn(ctx context.Context, w http.ResponseWriter, reqID string, turn *enhanceTurn) {
	session := stream.NewSession(turn.ThreadID, "enhance")

	es, err := h.invoker.RunTurn(ctx, agent.TurnRequest{
		ThreadID: turn.ThreadID,
		Prompt:   turn.Prompt,
		Options:  turn.Options,
	})
	if err != nil {
		h.logger.Error("upstream turn failed to start", "request_id", reqID, "error", err)
		h.emitTurnError(w, session.TurnID(), err)
		endSSE(w)
		return
	}
	defer es.Close()

	for {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during stream", "request_id", reqID)
			return
		}

		ev, err := es.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Error("upstream stream failed", "request_id", reqID, "error", err)
			h.emitTurnError(w, session.TurnID(), err)
			break
		}

		if ev.Type == agent.EventTurnCompleted && ev.Usage != nil && h.metrics != nil {
			h.metrics.RecordUsage(ev.Usage.InputTokens, ev.Usage.OutputTokens)
		}

		for _, out := range session.Translate(ev) {
			if h.metrics != nil {
				h.metrics.RecordStreamEvent(out.Type)
			}
			if err := writeSSE(w, out); err != nil {
				return
			}
		}
	}

	endSSE(w)
}

// emitTurnError reports a post-commit failure in-band; the stream still ends
// with the terminal sentinel so clients can detect completion.
func (h *Handler) emitTurnError(w http.ResponseWriter, turnID string, err error) {
	writeSSE(w, map[string]any{
		"event":   "turn/error",
		"type":    "turn/error",
		"turn_id": turnID,
		"error":   err.Error(),
		"code":    "service_error",
	})
}

func requestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}

// clientIP returns the request's peer address. When the server trusts its
// proxy, the RealIP middleware has already rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
