package manager

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"

	"github.com/edgestack/logcenter/internal/domain"
)

// SearchLogs runs the dual-tier search: the in-memory index of every requested
// subsystem, plus the on-disk per-day files when a start bound was supplied
// (an absent end bound defaults to now). An end bound alone leaves the scan
// start unbounded and stays on the index tier. Results from both tiers are
// merged, deduplicated by entry ID, sorted by timestamp descending and
// paginated.
func (m *Manager) SearchLogs(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	ctx, span := otel.Tracer("logcenter/search").Start(ctx, "SearchLogs")
	defer span.End()

	if q.Limit <= 0 {
		q.Limit = 100
	}
	if m.cfg.MaxSearchResults > 0 && q.Limit > m.cfg.MaxSearchResults {
		q.Limit = m.cfg.MaxSearchResults
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return nil, &domain.ValidationError{Field: "end", Reason: "must not precede start"}
	}

	subsystems := q.Subsystems
	if len(subsystems) == 0 {
		subsystems = m.ListSubsystems()
	}

	seen := make(map[string]struct{})
	var matched []*domain.LogEntry

	// Tier 1: in-memory indexes. Unknown subsystem names are skipped.
	for _, name := range subsystems {
		ix := m.index(name)
		if ix == nil {
			continue
		}
		for _, e := range ix.Scan(&q) {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			matched = append(matched, e)
		}
	}
	if m.metrics != nil {
		m.metrics.SearchesTotal.WithLabelValues("index").Inc()
	}

	// Tier 2: durable per-day files, whenever a start bound caps the scan.
	if q.Start != nil {
		end := time.Now().UTC()
		if q.End != nil {
			end = *q.End
		}
		for _, name := range subsystems {
			lg, ok := m.GetSubsystem(name)
			if !ok {
				continue
			}
			m.scanSubsystemFiles(ctx, lg.Dir(), &q, *q.Start, end, seen, &matched)
		}
		if m.metrics != nil {
			m.metrics.SearchesTotal.WithLabelValues("file").Inc()
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	return &domain.SearchResult{
		Results: matched[start:end],
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: total > q.Offset+q.Limit,
	}, nil
}

// scanSubsystemFiles walks the combined per-day files covering the query
// range. Filenames carry the local wall-clock date of rotation, so candidate
// days are derived in local time and padded one day on each side to cover
// entries whose timestamp falls near a date boundary. Malformed lines are
// skipped, not fatal.
func (m *Manager) scanSubsystemFiles(ctx context.Context, dir string, q *domain.SearchQuery, start, end time.Time, seen map[string]struct{}, matched *[]*domain.LogEntry) {
	first := start.In(time.Local).AddDate(0, 0, -1)
	first = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.Local)
	last := end.In(time.Local).AddDate(0, 0, 1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return
		}
		base := filepath.Join(dir, fmt.Sprintf("combined-%s.log", day.Format("2006-01-02")))
		for _, path := range []string{base, base + ".gz"} {
			if err := m.scanFile(path, q, seen, matched); err != nil && !os.IsNotExist(err) {
				m.log.Warn("file-tier scan failed", "path", path, "error", err)
			}
		}
	}
}

func (m *Manager) scanFile(path string, q *domain.SearchQuery, seen map[string]struct{}, matched *[]*domain.LogEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var scanner *bufio.Scanner
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gr.Close()
		scanner = bufio.NewScanner(gr)
	} else {
		scanner = bufio.NewScanner(f)
	}
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var entry domain.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !q.Matches(&entry, "") {
			continue
		}
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		e := entry
		*matched = append(*matched, &e)
	}
	return scanner.Err()
}
