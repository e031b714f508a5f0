package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgestack/logcenter/internal/adapter/api/handler"
	"github.com/edgestack/logcenter/internal/adapter/api/middleware"
	"github.com/edgestack/logcenter/internal/adapter/metrics"
	"github.com/edgestack/logcenter/internal/domain"
)

// Config holds the management API limits.
type Config struct {
	RequestsPerMinute int
	MaxSearchResults  int
	MaxDownloadBytes  int64
}

// Manager combines the registry surface the handlers need with the
// authenticator the middleware needs.
type Manager interface {
	handler.Manager
	middleware.Authenticator
}

// NewRouter creates and configures the management API router. Read-only verbs
// require the read permission, deletions require delete, key creation requires
// write; search paths are special-cased to read.
func NewRouter(cfg Config, mgr Manager, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 300
	}

	h := handler.New(mgr, logger, cfg.MaxSearchResults, cfg.MaxDownloadBytes)

	read := middleware.Auth(mgr, domain.PermissionRead, logger)
	write := middleware.Auth(mgr, domain.PermissionWrite, logger)
	del := middleware.Auth(mgr, domain.PermissionDelete, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logging(logger, m))
	r.Use(middleware.RateLimit(cfg.RequestsPerMinute, m))

	// Health check and metrics are exempt from authentication.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(read)
		r.Get("/subsystems", h.ListSubsystems)
		r.Get("/subsystems/{name}/stats", h.SubsystemStats)
		r.Post("/logs/search", h.Search)
		r.Get("/logs/{subsystem}", h.SubsystemLogs)
		r.Post("/logs/download", h.Download)
		r.Get("/analytics/overview", h.AnalyticsOverview)
		r.Get("/analytics/{subsystem}", h.SubsystemAnalytics)
		r.Get("/keys", h.ListKeys)
		r.Get("/stats", h.Stats)
		r.Get("/stats/performance", h.PerformanceStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(write)
		r.Post("/keys", h.CreateKey)
	})

	r.Group(func(r chi.Router) {
		r.Use(del)
		r.Delete("/logs/{subsystem}", h.ClearLogs)
		r.Delete("/logs", h.MasterReset)
		r.Delete("/keys/{prefix}", h.RevokeKey)
	})

	return r
}
