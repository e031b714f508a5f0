package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgestack/logcenter/internal/domain"
	"github.com/edgestack/logcenter/internal/manager"
	"github.com/edgestack/logcenter/internal/sublogger"
)

// routerManager stubs the full registry surface the router wires up. Keys:
// "reader" holds read only, "admin" holds everything.
type routerManager struct{}

func (routerManager) Authenticate(key string, required domain.Permission) (domain.AuthResult, error) {
	switch key {
	case "reader":
		if required != domain.PermissionRead {
			return domain.AuthResult{}, domain.ErrInsufficientPermission
		}
		return domain.AuthResult{Name: "reader"}, nil
	case "admin":
		return domain.AuthResult{Name: "admin"}, nil
	default:
		return domain.AuthResult{}, domain.ErrInvalidKey
	}
}

func (routerManager) ListSubsystems() []string { return []string{"api"} }

func (routerManager) SubsystemStats(name string) (sublogger.Stats, error) {
	return sublogger.Stats{Subsystem: name}, nil
}

func (routerManager) GetStats() manager.Stats { return manager.Stats{} }

func (routerManager) SearchLogs(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	return &domain.SearchResult{Limit: q.Limit}, nil
}

func (routerManager) CreateAPIKey(ctx context.Context, name string, perms []domain.Permission) (domain.APIKey, error) {
	return domain.APIKey{Key: "new-key", Name: name, Permissions: perms}, nil
}

func (routerManager) RevokeAPIKeyByPrefix(ctx context.Context, prefix string) error { return nil }

func (routerManager) ListAPIKeys() []domain.APIKey { return nil }

func (routerManager) ClearSubsystemLogs(ctx context.Context, name string, criteria domain.ClearCriteria) (int, error) {
	return 0, nil
}

func (routerManager) MasterReset(ctx context.Context) (int, error) { return 0, nil }

func TestRouterPermissionEnforcement(t *testing.T) {
	router := NewRouter(Config{RequestsPerMinute: 10000}, routerManager{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	tests := []struct {
		name       string
		method     string
		path       string
		key        string
		wantStatus int
	}{
		{name: "health is open", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "metrics is open", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "read requires a key", method: http.MethodGet, path: "/subsystems", wantStatus: http.StatusUnauthorized},
		{name: "reader can list", method: http.MethodGet, path: "/subsystems", key: "reader", wantStatus: http.StatusOK},
		{name: "reader can view stats", method: http.MethodGet, path: "/stats", key: "reader", wantStatus: http.StatusOK},
		{name: "reader cannot clear", method: http.MethodDelete, path: "/logs/api", key: "reader", wantStatus: http.StatusForbidden},
		{name: "admin can clear", method: http.MethodDelete, path: "/logs/api", key: "admin", wantStatus: http.StatusOK},
		{name: "reader cannot revoke", method: http.MethodDelete, path: "/keys/abcd1234", key: "reader", wantStatus: http.StatusForbidden},
		{name: "admin can revoke", method: http.MethodDelete, path: "/keys/abcd1234", key: "admin", wantStatus: http.StatusNoContent},
		{name: "unknown key rejected", method: http.MethodGet, path: "/keys", key: "bogus", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
