package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgestack/logcenter/internal/domain"
)

// Search handles POST /logs/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var q domain.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed search query")
		return
	}
	if q.Limit <= 0 || q.Limit > h.maxSearchResults {
		q.Limit = h.maxSearchResults
	}

	result, err := h.mgr.SearchLogs(r.Context(), q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubsystemLogs handles GET /logs/{subsystem}, mapping query parameters onto
// the same search shape.
func (h *Handler) SubsystemLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "subsystem")
	q, err := queryFromParams(r, name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if q.Limit <= 0 || q.Limit > h.maxSearchResults {
		q.Limit = h.maxSearchResults
	}

	result, searchErr := h.mgr.SearchLogs(r.Context(), q)
	if searchErr != nil {
		h.writeDomainError(w, searchErr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryFromParams(r *http.Request, subsystem string) (domain.SearchQuery, error) {
	params := r.URL.Query()
	q := domain.SearchQuery{
		Subsystems: []string{subsystem},
		Text:       params.Get("text"),
	}

	if v := params.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, &domain.ValidationError{Field: "start", Reason: "must be RFC3339"}
		}
		q.Start = &t
	}
	if v := params.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, &domain.ValidationError{Field: "end", Reason: "must be RFC3339"}
		}
		q.End = &t
	}
	if v := params.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return q, &domain.ValidationError{Field: "status", Reason: "must be comma-separated integers"}
			}
			q.StatusCodes = append(q.StatusCodes, code)
		}
	}
	if v := params.Get("method"); v != "" {
		q.Methods = strings.Split(v, ",")
	}
	if v := params.Get("client_ip"); v != "" {
		q.ClientIPs = strings.Split(v, ",")
	}
	if v := params.Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := params.Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}
	return q, nil
}
