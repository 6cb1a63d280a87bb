package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the JSON envelope for auth, quota, and CORS failures.
type ErrorBody struct {
	Error string `json:"error"`
}

// DetailBody is the JSON envelope for request-validation failures, matching
// what streaming clients already parse.
type DetailBody struct {
	Detail string `json:"detail"`
}

// WriteJSON writes an arbitrary JSON payload with the given status.
func WriteJSON(w http.ResponseWriter, requestID string, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, message string) {
	WriteJSON(w, requestID, statusCode, ErrorBody{Error: message})
}

func WriteDetail(w http.ResponseWriter, requestID string, statusCode int, detail string) {
	WriteJSON(w, requestID, statusCode, DetailBody{Detail: detail})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, message)
}

func WriteAuthUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, message)
}

// WriteRateLimitError writes a 429 with a Retry-After header in seconds.
func WriteRateLimitError(w http.ResponseWriter, requestID string, retryAfterSeconds int, message string) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteError(w, requestID, http.StatusTooManyRequests, message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, detail string) {
	WriteDetail(w, requestID, http.StatusBadRequest, detail)
}

func WritePayloadTooLargeError(w http.ResponseWriter, requestID, detail string) {
	WriteDetail(w, requestID, http.StatusRequestEntityTooLarge, detail)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, message)
}

func WriteForbiddenError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, message)
}
