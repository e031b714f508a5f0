package manager

import (
	"sync"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
)

type indexEntry struct {
	id         string
	ts         time.Time
	searchable string
	entry      *domain.LogEntry
}

// Index is the bounded, recent-entries search structure for one subsystem.
// Entries are held oldest-first; the oldest is evicted when the bound is hit.
type Index struct {
	mu      sync.RWMutex
	maxSize int
	entries []indexEntry
}

func newIndex(maxSize int) *Index {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &Index{maxSize: maxSize}
}

// Add indexes one entry, evicting the oldest when full. The searchable blob is
// precomputed here so query-time matching is a plain substring check.
func (ix *Index) Add(e *domain.LogEntry) {
	ie := indexEntry{id: e.ID, ts: e.Timestamp, searchable: e.Searchable(), entry: e}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.entries) >= ix.maxSize {
		ix.entries = ix.entries[1:]
	}
	ix.entries = append(ix.entries, ie)
}

// Scan returns every indexed entry matching the query predicate.
func (ix *Index) Scan(q *domain.SearchQuery) []*domain.LogEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matched []*domain.LogEntry
	for _, ie := range ix.entries {
		if q.Matches(ie.entry, ie.searchable) {
			matched = append(matched, ie.entry)
		}
	}
	return matched
}

// Clear removes entries selected by the criteria and returns the removed
// count.
func (ix *Index) Clear(c *domain.ClearCriteria) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if c.Force {
		removed := len(ix.entries)
		ix.entries = nil
		return removed
	}

	kept := ix.entries[:0]
	removed := 0
	for _, ie := range ix.entries {
		if c.Selects(ie.entry, ie.searchable) {
			removed++
			continue
		}
		kept = append(kept, ie)
	}
	ix.entries = kept
	return removed
}

// Size returns the current number of indexed entries.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
