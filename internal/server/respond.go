package server

import (
	"encoding/json"
	"net/http"
)

// Error types used in JSON error bodies.
const (
	ErrorTypeServer     = "server_error"
	ErrorTypeNotFound   = "not_found"
	ErrorTypeBadRequest = "invalid_request_error"
	ErrorTypeUpstream   = "upstream_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteText writes s as plain text with the given status.
func WriteText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(s))
}

// WriteError writes {"error":{"type":...,"message":...}}.
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Type: errType, Message: message}})
}

// NotFound answers unknown routes and failed route constraints.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, ErrorTypeNotFound, "no route matches "+r.URL.Path)
}

// MethodNotAllowed answers known paths requested with an unrouted method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, ErrorTypeBadRequest, "method "+r.Method+" not allowed")
}
