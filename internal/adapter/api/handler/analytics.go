package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgestack/logcenter/internal/domain"
)

// TimelineBucket is one fixed window of the request/error timeline.
type TimelineBucket struct {
	Start    time.Time `json:"start"`
	Requests int       `json:"requests"`
	Errors   int       `json:"errors"`
}

// AnalyticsReport aggregates matched entries over a period. Aggregation runs
// over at most the search result cap of most-recent entries; MatchedTotal
// carries the full matched count and Sampled flags a truncated aggregation.
type AnalyticsReport struct {
	Subsystem     string           `json:"subsystem,omitempty"`
	Period        string           `json:"period"`
	TotalRequests int              `json:"total_requests"`
	TotalErrors   int              `json:"total_errors"`
	ErrorRate     float64          `json:"error_rate"`
	AvgExecMs     float64          `json:"avg_execution_time_ms"`
	MatchedTotal  int              `json:"matched_total"`
	Sampled       bool             `json:"sampled"`
	StatusCounts  map[int]int      `json:"status_counts"`
	MethodCounts  map[string]int   `json:"method_counts"`
	Timeline      []TimelineBucket `json:"timeline"`
}

// periodWindow maps a requested period onto its scan window and bucket size:
// hour uses 5-minute buckets, day 1-hour, week and month 1-day.
func periodWindow(period string) (window, bucket time.Duration, err error) {
	switch period {
	case "", "day":
		return 24 * time.Hour, time.Hour, nil
	case "hour":
		return time.Hour, 5 * time.Minute, nil
	case "week":
		return 7 * 24 * time.Hour, 24 * time.Hour, nil
	case "month":
		return 30 * 24 * time.Hour, 24 * time.Hour, nil
	default:
		return 0, 0, &domain.ValidationError{Field: "period", Reason: "must be hour, day, week or month"}
	}
}

// AnalyticsOverview handles GET /analytics/overview: a day-period report over
// every subsystem.
func (h *Handler) AnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	report, err := h.buildReport(r, nil, "day")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SubsystemAnalytics handles GET /analytics/{subsystem}?period=.
func (h *Handler) SubsystemAnalytics(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "subsystem")
	report, err := h.buildReport(r, []string{name}, r.URL.Query().Get("period"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	report.Subsystem = name
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) buildReport(r *http.Request, subsystems []string, period string) (*AnalyticsReport, error) {
	window, bucketSize, err := periodWindow(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "day"
	}

	end := time.Now().UTC()
	start := end.Add(-window)
	result, err := h.mgr.SearchLogs(r.Context(), domain.SearchQuery{
		Subsystems: subsystems,
		Start:      &start,
		End:        &end,
		Limit:      h.maxSearchResults,
	})
	if err != nil {
		return nil, err
	}

	bucketCount := int(window / bucketSize)
	report := &AnalyticsReport{
		Period:       period,
		MatchedTotal: result.Total,
		Sampled:      result.Total > len(result.Results),
		StatusCounts: make(map[int]int),
		MethodCounts: make(map[string]int),
		Timeline:     make([]TimelineBucket, bucketCount),
	}
	for i := range report.Timeline {
		report.Timeline[i].Start = start.Add(time.Duration(i) * bucketSize)
	}

	var execTotal float64
	for _, e := range result.Results {
		report.TotalRequests++
		if e.IsError() {
			report.TotalErrors++
		}
		report.StatusCounts[e.StatusCode]++
		if e.Method != "" {
			report.MethodCounts[e.Method]++
		}
		execTotal += e.ExecutionTimeMs

		idx := int(e.Timestamp.Sub(start) / bucketSize)
		if idx >= 0 && idx < bucketCount {
			report.Timeline[idx].Requests++
			if e.IsError() {
				report.Timeline[idx].Errors++
			}
		}
	}
	if report.TotalRequests > 0 {
		report.ErrorRate = float64(report.TotalErrors) / float64(report.TotalRequests)
		report.AvgExecMs = execTotal / float64(report.TotalRequests)
	}
	return report, nil
}
