package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
)

// DownloadRequest selects the entries and serialization of a log export.
type DownloadRequest struct {
	Format string             `json:"format"` // json, csv or txt
	Query  domain.SearchQuery `json:"query"`
}

// Download handles POST /logs/download. The serialized size is estimated from
// a sample before transmission; estimates over the configured cap are
// rejected with 413.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed download request")
		return
	}
	switch req.Format {
	case "json", "csv", "txt":
	default:
		writeError(w, http.StatusBadRequest, "validation", "format must be json, csv or txt")
		return
	}

	q := req.Query
	if q.Limit <= 0 || q.Limit > h.maxSearchResults {
		q.Limit = h.maxSearchResults
	}
	result, err := h.mgr.SearchLogs(r.Context(), q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if estimateSize(result.Results) > h.maxDownloadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "capacity", "estimated download exceeds configured cap")
		return
	}

	filename := fmt.Sprintf("logs-%s.%s", time.Now().UTC().Format("20060102-150405"), req.Format)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	switch req.Format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result.Results)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		writeCSV(w, result.Results)
	case "txt":
		w.Header().Set("Content-Type", "text/plain")
		enc := json.NewEncoder(w)
		for _, e := range result.Results {
			_ = enc.Encode(e)
		}
	}
}

// estimateSize extrapolates the serialized size from a sample of up to 100
// entries.
func estimateSize(entries []*domain.LogEntry) int64 {
	if len(entries) == 0 {
		return 0
	}
	sample := entries
	if len(sample) > 100 {
		sample = sample[:100]
	}
	var sampled int64
	for _, e := range sample {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		sampled += int64(len(data)) + 1
	}
	avg := sampled / int64(len(sample))
	return avg * int64(len(entries))
}

// writeCSV emits the tabular export. Field values are joined verbatim:
// embedded delimiters are not escaped.
func writeCSV(w http.ResponseWriter, entries []*domain.LogEntry) {
	fmt.Fprintln(w, "id,timestamp,subsystem,method,path,status_code,response_size,execution_time_ms,client_ip,cache_status,error")
	for _, e := range entries {
		errMsg := ""
		if e.Error != nil {
			errMsg = e.Error.Message
		}
		fields := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339Nano),
			e.Subsystem,
			e.Method,
			e.Path,
			strconv.Itoa(e.StatusCode),
			strconv.FormatInt(e.ResponseSize, 10),
			strconv.FormatFloat(e.ExecutionTimeMs, 'f', -1, 64),
			e.ClientIP,
			e.CacheStatus,
			errMsg,
		}
		fmt.Fprintln(w, strings.Join(fields, ","))
	}
}
