package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON error body. Reason is a stable machine-readable
// code; Message is safe for display and never carries internal details.
type ErrorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// noStore sets cache control headers so auth responses never land in a
// browser or proxy cache.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("Pragma", "no-cache")
}

// writeJSON writes a JSON response with the proper content type and status.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// BadRequest writes a 400 response with a generic error body. The detailed
// reason is logged server-side, not exposed.
func BadRequest(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("bad request", "path", r.URL.Path, "reason", reason)
	noStore(w)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Reason: "invalid_request"})
}

// ServerError writes a 500 response for errors that are not the client's
// fault.
func ServerError(w http.ResponseWriter, r *http.Request) {
	slog.Error("server error", "path", r.URL.Path)
	noStore(w)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Reason: "server_error"})
}
