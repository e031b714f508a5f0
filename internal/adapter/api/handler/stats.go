package handler

import (
	"net/http"
	"runtime"
)

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.GetStats())
}

// PerformanceStats handles GET /stats/performance: per-subsystem throughput
// plus process-level runtime numbers.
func (h *Handler) PerformanceStats(w http.ResponseWriter, r *http.Request) {
	stats := h.mgr.GetStats()

	perSubsystem := make(map[string]map[string]any, len(stats.Subsystems))
	for name, s := range stats.Subsystems {
		perSubsystem[name] = map[string]any{
			"requests_per_second": s.RequestsPerSecond,
			"error_rate":          s.ErrorRate,
			"buffer_size":         s.BufferSize,
			"open_files":          s.OpenFiles,
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"subsystems":       perSubsystem,
		"indexed_entries":  stats.IndexedEntries,
		"goroutines":       runtime.NumGoroutine(),
		"heap_alloc_bytes": mem.HeapAlloc,
		"num_gc":           mem.NumGC,
	})
}
