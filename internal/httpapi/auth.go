package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shiftwork/shift-service/internal/store"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionResolver is the slice of the store the auth middleware needs.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
}

func publicPath(r *http.Request) bool {
	if r.URL.Path == "/healthz" {
		return true
	}
	if r.Method == http.MethodGet && r.URL.Path == "/api/shifts" {
		return true
	}
	return false
}

// AuthMiddleware resolves the bearer token to a session and stashes it on
// the request context. Health and the public shift listing skip auth.
func AuthMiddleware(sessions SessionResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		session, err := sessions.GetSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, "", http.StatusUnauthorized, "unauthorized", "invalid or expired session")
				return
			}
			writeError(w, "", http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
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

func sessionFrom(r *http.Request) (store.Session, bool) {
	session, ok := r.Context().Value(sessionContextKey).(store.Session)
	return session, ok
}

// tenantFrom prefers the authenticated session's tenant; public reads fall
// back to the tenant_id query parameter.
func tenantFrom(r *http.Request) string {
	if session, ok := sessionFrom(r); ok && session.TenantID != "" {
		return session.TenantID
	}
	return r.URL.Query().Get("tenant_id")
}
