package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/auth"
)

type ctxKey int

const tokenKey ctxKey = iota

// requireAuth validates the bearer token against the API-key collection and
// stashes it in the request context for later permission checks.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token")
			return
		}

		if _, err := h.eval.Authenticate(r.Context(), token); err != nil {
			if errors.Is(err, auth.ErrInvalidCredential) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}
			writeInternal(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}

// requirePermission runs the (resource, action) check for the request's
// credential, writing a 403 when it fails. Permission state is re-read per
// call, so revocations apply immediately.
func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, resource, action string) bool {
	token, _ := r.Context().Value(tokenKey).(string)
	if !h.eval.CheckPermission(r.Context(), token, resource, action) {
		writeError(w, http.StatusForbidden, CodeForbidden, "insufficient permissions for "+resource)
		return false
	}
	return true
}

// requireAdmin gates operational mutations on the admin permission. A key
// scoped to every resource still fails this check.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	token, _ := r.Context().Value(tokenKey).(string)
	if !h.eval.CheckAdmin(r.Context(), token) {
		writeError(w, http.StatusForbidden, CodeForbidden, "admin permission required")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
