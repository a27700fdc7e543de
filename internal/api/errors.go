package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response. RequestID matches the
// X-Request-ID header so a failing call can be found in the bridge logs.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes returned by the diagnostics API.
const (
	CodeUnknownDevice    = "unknown_device"
	CodeInvalidQuery     = "invalid_query"
	CodeNoRoute          = "no_route"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away; nothing left to report to
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	e := Error{Status: status, Code: code, Message: message}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		e.RequestID = id
	}
	writeJSON(w, status, e)
}
