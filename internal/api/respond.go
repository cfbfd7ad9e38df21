package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": apiError{Code: code, Message: message},
	})
}

// writeInternal logs the real error and hands the client an opaque 500.
func writeInternal(w http.ResponseWriter, err error) {
	slog.Error("internal api error", "error", err)
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
