package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/edgestack/logcenter/internal/domain"
)

// APIKeyHeader carries the presented key on management API requests.
const APIKeyHeader = "X-API-Key"

// Authenticator validates a presented key against a required permission.
type Authenticator interface {
	Authenticate(key string, required domain.Permission) (domain.AuthResult, error)
}

// Auth is a middleware factory enforcing the given permission on every
// request through it. Failures are structured JSON bodies with no state
// mutation.
func Auth(auth Authenticator, required domain.Permission, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				logger.Warn("API key missing from request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid_key", "API key required")
				return
			}

			_, err := auth.Authenticate(apiKey, required)
			switch {
			case errors.Is(err, domain.ErrInvalidKey):
				logger.Warn("invalid API key presented", "remote_addr", r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "invalid_key", "invalid API key")
				return
			case errors.Is(err, domain.ErrInsufficientPermission):
				writeError(w, http.StatusForbidden, "insufficient_permission", "key lacks required permission: "+string(required))
				return
			case err != nil:
				logger.Error("failed to authenticate request", "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "internal server error")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
