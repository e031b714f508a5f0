package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgestack/logcenter/internal/domain"
)

// MasterResetConfirmToken must accompany a full reset request.
const MasterResetConfirmToken = "CONFIRM_MASTER_RESET"

// ClearLogs handles DELETE /logs/{subsystem}. Only the in-memory index is
// affected; durable files are never touched by this endpoint.
func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "subsystem")

	var criteria domain.ClearCriteria
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "malformed clear criteria")
			return
		}
	}

	removed, err := h.mgr.ClearSubsystemLogs(r.Context(), name, criteria)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type masterResetRequest struct {
	Confirm string `json:"confirm"`
}

// MasterReset handles DELETE /logs. It requires the explicit confirmation
// token.
func (h *Handler) MasterReset(w http.ResponseWriter, r *http.Request) {
	var req masterResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirm != MasterResetConfirmToken {
		writeError(w, http.StatusBadRequest, "validation", "master reset requires the confirmation token")
		return
	}

	removed, err := h.mgr.MasterReset(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
