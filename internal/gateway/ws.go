package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/promptforge/enhance-gateway/internal/agent"
	"github.com/promptforge/enhance-gateway/internal/auth"
	"github.com/promptforge/enhance-gateway/internal/httputil"
	"github.com/promptforge/enhance-gateway/internal/ratelimit"
	"github.com/promptforge/enhance-gateway/internal/stream"
)

const (
	wsProtocol           = "promptforge.enhance.v1"
	wsBearerProtoPrefix  = "auth.bearer."
	wsAPIKeyProtoPrefix  = "auth.apikey."
	wsServiceProtoPrefix = "auth.service."
)

// wsConnTracker caps concurrent websocket connections per client IP.
type wsConnTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newWSConnTracker() *wsConnTracker {
	return &wsConnTracker{counts: make(map[string]int)}
}

func (t *wsConnTracker) acquire(ip string, max int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[ip] >= max {
		return false
	}
	t.counts[ip]++
	return true
}

func (t *wsConnTracker) release(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[ip] <= 1 {
		delete(t.counts, ip)
		return
	}
	t.counts[ip]--
}

type wsErrorEvent struct {
	Event             string `json:"event"`
	Type              string `json:"type"`
	Error             string `json:"error"`
	Status            int    `json:"status,omitempty"`
	Code              string `json:"code,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// wsStartEnvelope is the first client message: either an explicit
// {"type":"enhance.start","payload":{...},"auth":{...}} envelope or a bare
// enhance request body with an optional auth object.
type wsStartEnvelope struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Auth           json.RawMessage `json:"auth"`
	Authentication json.RawMessage `json:"authentication"`
}

type wsAuthPayload struct {
	BearerToken     string `json:"bearer_token"`
	BearerTokenAlt  string `json:"bearerToken"`
	AccessToken     string `json:"access_token"`
	AccessTokenAlt  string `json:"accessToken"`
	APIKey          string `json:"apikey"`
	APIKeyAlt       string `json:"api_key"`
	APIKeyCamel     string `json:"apiKey"`
	ServiceToken    string `json:"service_token"`
	ServiceTokenAlt string `json:"serviceToken"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func decodeBase64URL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(trimmed, "="))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// wsAuthHeaders synthesizes the HTTP auth headers from the websocket
// subprotocol entries and the start payload's auth object. Browsers cannot
// set request headers on websocket upgrades, so credentials ride in
// base64url-encoded subprotocol entries instead.
func wsAuthHeaders(r *http.Request, authRaw json.RawMessage) http.Header {
	h := http.Header{}

	for _, entry := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		proto := strings.TrimSpace(entry)
		switch {
		case strings.HasPrefix(proto, wsBearerProtoPrefix):
			if token := decodeBase64URL(strings.TrimPrefix(proto, wsBearerProtoPrefix)); token != "" {
				h.Set("Authorization", "Bearer "+token)
			}
		case strings.HasPrefix(proto, wsAPIKeyProtoPrefix):
			if key := decodeBase64URL(strings.TrimPrefix(proto, wsAPIKeyProtoPrefix)); key != "" {
				h.Set(auth.APIKeyHeader, key)
			}
		case strings.HasPrefix(proto, wsServiceProtoPrefix):
			if token := decodeBase64URL(strings.TrimPrefix(proto, wsServiceProtoPrefix)); token != "" {
				h.Set(auth.ServiceTokenHeader, token)
			}
		}
	}

	if len(authRaw) > 0 {
		var payload wsAuthPayload
		if err := json.Unmarshal(authRaw, &payload); err == nil {
			if bearer := firstNonEmpty(payload.BearerToken, payload.BearerTokenAlt, payload.AccessToken, payload.AccessTokenAlt); bearer != "" {
				h.Set("Authorization", "Bearer "+bearer)
			}
			if key := firstNonEmpty(payload.APIKey, payload.APIKeyAlt, payload.APIKeyCamel); key != "" {
				h.Set(auth.APIKeyHeader, key)
			}
			if token := firstNonEmpty(payload.ServiceToken, payload.ServiceTokenAlt); token != "" {
				h.Set(auth.ServiceTokenHeader, token)
			}
		}
	}

	return h
}

// EnhanceWS handles GET /enhance/ws: the same enhance pipeline over a
// websocket, for clients that cannot consume server-sent events.
func (h *Handler) EnhanceWS(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	cfg := h.cfg()

	if _, ok := resolveCORS(r, cfg.CORS); !ok {
		httputil.WriteForbiddenError(w, reqID, "Origin is not allowed.")
		return
	}

	ip := clientIP(r)
	if !h.wsConns.acquire(ip, cfg.Limits.WSMaxConnectionsPerIP) {
		httputil.WriteRateLimitError(w, reqID, 1, "Too many concurrent websocket connections. Please retry shortly.")
		return
	}
	defer h.wsConns.release(ip)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsProtocol},
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "request_id", reqID, "error", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "internal_error")
	c.SetReadLimit(cfg.Limits.WSMaxPayloadBytes)

	startCtx, cancelStart := context.WithTimeout(r.Context(), cfg.Limits.WSStartTimeout)
	msgType, data, err := c.Read(startCtx)
	cancelStart()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.wsFail(r.Context(), c, wsErrorEvent{
				Event: "turn/error", Type: "turn/error",
				Error:  "Timed out waiting for websocket start payload.",
				Status: http.StatusRequestTimeout,
				Code:   "request_timeout",
			}, websocket.StatusPolicyViolation, "start_timeout")
		}
		return
	}
	if msgType != websocket.MessageText {
		h.wsFail(r.Context(), c, wsErrorEvent{
			Event: "turn/error", Type: "turn/error",
			Error:  "Invalid websocket payload.",
			Status: http.StatusBadRequest,
			Code:   "bad_response",
		}, websocket.StatusUnsupportedData, "invalid_payload")
		return
	}

	var envelope wsStartEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.wsFail(r.Context(), c, wsErrorEvent{
			Event: "turn/error", Type: "turn/error",
			Error:  "Invalid JSON body.",
			Status: http.StatusBadRequest,
			Code:   "bad_response",
		}, websocket.StatusUnsupportedData, "invalid_json")
		return
	}

	payloadRaw := data
	authRaw := firstRaw(envelope.Auth, envelope.Authentication)
	if envelope.Type == "enhance.start" {
		payloadRaw = envelope.Payload
	}

	authHeaders := wsAuthHeaders(r, authRaw)

	// Reads are done; from here the connection context doubles as the
	// client-disconnect signal for the upstream turn.
	ctx := c.CloseRead(r.Context())

	identity, err := h.resolver.Authenticate(ctx, authHeaders, ip)
	if err != nil {
		status, message, class := auth.Classify(err)
		if h.metrics != nil {
			h.metrics.RecordAuthFailure(class)
		}
		code := "auth_session_invalid"
		if status == http.StatusServiceUnavailable {
			code = "service_unavailable"
		} else if errors.Is(err, auth.ErrMissingToken) {
			code = "auth_required"
		}
		h.wsFail(ctx, c, wsErrorEvent{
			Event: "turn/error", Type: "turn/error",
			Error: message, Status: status, Code: code,
		}, websocket.StatusPolicyViolation, "auth_failed")
		return
	}

	quota := ratelimit.Quota{
		Op:        "enhance",
		PerMinute: int64(cfg.Limits.EnhancePerMinute),
		PerDay:    int64(cfg.Limits.EnhancePerDay),
	}
	decision, err := h.limiter.Check(ctx, quota, identity.RateKey, ip)
	if err == nil && !decision.Allowed {
		if h.metrics != nil {
			h.metrics.RecordRateLimitHit(quota.Op + ":" + decision.Window)
		}
		message := "Rate limit exceeded. Please try again later."
		if decision.Window == "day" {
			message = "Daily quota exceeded. Please try again tomorrow."
		}
		h.wsFail(ctx, c, wsErrorEvent{
			Event: "turn/error", Type: "turn/error",
			Error:             message,
			Status:            http.StatusTooManyRequests,
			Code:              "rate_limited",
			RetryAfterSeconds: decision.RetryAfterSeconds,
		}, websocket.StatusPolicyViolation, "rate_limited")
		return
	}

	var body enhanceBody
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &body); err != nil {
			h.wsFail(ctx, c, wsErrorEvent{
				Event: "turn/error", Type: "turn/error",
				Error:  "Invalid JSON body.",
				Status: http.StatusBadRequest,
				Code:   "bad_response",
			}, websocket.StatusUnsupportedData, "invalid_json")
			return
		}
	}
	turn, rerr := buildEnhanceTurn(&body, cfg)
	if rerr != nil {
		h.wsFail(ctx, c, wsErrorEvent{
			Event: "turn/error", Type: "turn/error",
			Error: rerr.Detail, Status: rerr.Status, Code: "bad_response",
		}, websocket.StatusPolicyViolation, "invalid_request")
		return
	}

	h.logger.Info("enhance websocket stream starting",
		"request_id", reqID,
		"thread_id", turn.ThreadID,
		"public", identity.IsPublicKey,
	)

	if h.streamTurnWS(ctx, c, reqID, turn) {
		wsjson.Write(ctx, c, map[string]string{"event": "stream.done", "type": "stream.done"})
		c.Close(websocket.StatusNormalClosure, "done")
	}
}

// streamTurnWS relays the translated turn over the websocket. It reports
// whether the stream finished cleanly.
func (h *Handler) streamTurnWS(ctx context.Context, c *websocket.Conn, reqID string, turn *enhanceTurn) bool {
	session := stream.NewSession(turn.ThreadID, "enhance")

	es, err := h.invoker.RunTurn(ctx, agent.TurnRequest{
		ThreadID: turn.ThreadID,
		Prompt:   turn.Prompt,
		Options:  turn.Options,
	})
	if err != nil {
		h.logger.Error("upstream turn failed to start", "request_id", reqID, "error", err)
		h.wsFail(ctx, c, wsErrorEvent{
			Event: "turn/error", Type: "turn/error",
			Error: err.Error(), Status: http.StatusInternalServerError, Code: "service_error",
		}, websocket.StatusInternalError, "internal_error")
		return false
	}
	defer es.Close()

	for {
		if ctx.Err() != nil {
			return false
		}

		ev, err := es.Next()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			h.logger.Error("upstream stream failed", "request_id", reqID, "error", err)
			h.wsFail(ctx, c, wsErrorEvent{
				Event: "turn/error", Type: "turn/error",
				Error: err.Error(), Status: http.StatusInternalServerError, Code: "service_error",
			}, websocket.StatusInternalError, "internal_error")
			return false
		}

		if ev.Type == agent.EventTurnCompleted && ev.Usage != nil && h.metrics != nil {
			h.metrics.RecordUsage(ev.Usage.InputTokens, ev.Usage.OutputTokens)
		}

		for _, out := range session.Translate(ev) {
			if h.metrics != nil {
				h.metrics.RecordStreamEvent(out.Type)
			}
			if err := wsjson.Write(ctx, c, out); err != nil {
				return false
			}
		}
	}
}

func (h *Handler) wsFail(ctx context.Context, c *websocket.Conn, ev wsErrorEvent, code websocket.StatusCode, reason string) {
	wsjson.Write(ctx, c, ev)
	c.Close(code, reason)
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
