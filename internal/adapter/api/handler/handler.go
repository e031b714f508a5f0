package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/edgestack/logcenter/internal/domain"
	"github.com/edgestack/logcenter/internal/manager"
	"github.com/edgestack/logcenter/internal/sublogger"
)

// Manager is the slice of the central registry the management API delegates
// to. All state changes go through it.
type Manager interface {
	ListSubsystems() []string
	SubsystemStats(name string) (sublogger.Stats, error)
	GetStats() manager.Stats
	SearchLogs(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error)
	CreateAPIKey(ctx context.Context, name string, perms []domain.Permission) (domain.APIKey, error)
	RevokeAPIKeyByPrefix(ctx context.Context, prefix string) error
	ListAPIKeys() []domain.APIKey
	ClearSubsystemLogs(ctx context.Context, name string, criteria domain.ClearCriteria) (int, error)
	MasterReset(ctx context.Context) (int, error)
}

// Handler carries the shared dependencies of all management API handlers.
type Handler struct {
	mgr              Manager
	log              *slog.Logger
	maxSearchResults int
	maxDownloadBytes int64
}

// New creates the handler set.
func New(mgr Manager, logger *slog.Logger, maxSearchResults int, maxDownloadBytes int64) *Handler {
	if maxSearchResults <= 0 {
		maxSearchResults = 1000
	}
	if maxDownloadBytes <= 0 {
		maxDownloadBytes = 10 << 20
	}
	return &Handler{
		mgr:              mgr,
		log:              logger.With("component", "api"),
		maxSearchResults: maxSearchResults,
		maxDownloadBytes: maxDownloadBytes,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeDomainError maps the shared error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation", ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrInvalidKey):
		writeError(w, http.StatusUnauthorized, "invalid_key", "invalid API key")
	case errors.Is(err, domain.ErrInsufficientPermission):
		writeError(w, http.StatusForbidden, "insufficient_permission", "insufficient permission")
	case errors.Is(err, domain.ErrCapacity):
		writeError(w, http.StatusRequestEntityTooLarge, "capacity", "result exceeds configured cap")
	default:
		h.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
