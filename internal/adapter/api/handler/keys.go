package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgestack/logcenter/internal/domain"
)

// ListKeys handles GET /keys. Only the short prefix of each key is exposed.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys := h.mgr.ListAPIKeys()
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{
			"prefix":      k.Key,
			"name":        k.Name,
			"permissions": k.Permissions,
			"created_at":  k.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

type createKeyRequest struct {
	Name        string              `json:"name"`
	Permissions []domain.Permission `json:"permissions"`
}

// CreateKey handles POST /keys. The response carries the full key value
// exactly once.
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed key request")
		return
	}

	key, err := h.mgr.CreateAPIKey(r.Context(), req.Name, req.Permissions)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// RevokeKey handles DELETE /keys/{prefix}, resolving the prefix to a full key.
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	if err := h.mgr.RevokeAPIKeyByPrefix(r.Context(), prefix); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
