package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgestack/logcenter/internal/domain"
)

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(key string, required domain.Permission) (domain.AuthResult, error) {
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

func TestAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		key        string
		required   domain.Permission
		wantStatus int
		wantCode   string
	}{
		{name: "missing key", key: "", required: domain.PermissionRead, wantStatus: http.StatusUnauthorized, wantCode: "invalid_key"},
		{name: "unknown key", key: "bogus", required: domain.PermissionRead, wantStatus: http.StatusUnauthorized, wantCode: "invalid_key"},
		{name: "insufficient permission", key: "reader", required: domain.PermissionDelete, wantStatus: http.StatusForbidden, wantCode: "insufficient_permission"},
		{name: "allowed", key: "reader", required: domain.PermissionRead, wantStatus: http.StatusOK},
		{name: "admin delete", key: "admin", required: domain.PermissionDelete, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(fakeAuthenticator{}, tt.required, logger)(next)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if body["code"] != tt.wantCode {
					t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
				}
			}
		})
	}
}
