package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListSubsystems handles GET /subsystems.
func (h *Handler) ListSubsystems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"subsystems": h.mgr.ListSubsystems()})
}

// SubsystemStats handles GET /subsystems/{name}/stats.
func (h *Handler) SubsystemStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stats, err := h.mgr.SubsystemStats(name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
