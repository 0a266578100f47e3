package web

import (
	"encoding/json"
	"net/http"

	"warehouse-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleError maps the engine's typed errors onto HTTP statuses: 423 for a
// status-gated refusal, 409 for a state conflict.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := core.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "VALIDATION":
		status = http.StatusBadRequest
	case "INSUFFICIENT_STOCK", "CONCURRENCY_CONFLICT":
		status = http.StatusConflict
	case "STATUS_RESTRICTED":
		status = http.StatusLocked
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, r, msg, code, status)
}
