package domain

import (
	"strings"
	"time"
)

// SearchQuery describes one search over the in-memory index and, when a date
// range is given, the durable per-day files.
type SearchQuery struct {
	Subsystems  []string   `json:"subsystems"`
	Text        string     `json:"text,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	StatusCodes []int      `json:"status_codes,omitempty"`
	Methods     []string   `json:"methods,omitempty"`
	ClientIPs   []string   `json:"client_ips,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// Matches applies the query predicate to a single entry. searchable is the
// precomputed lowercase blob; pass "" to have it synthesized from the entry.
func (q *SearchQuery) Matches(e *LogEntry, searchable string) bool {
	if q.Text != "" {
		if searchable == "" {
			searchable = e.Searchable()
		}
		if !strings.Contains(searchable, strings.ToLower(q.Text)) {
			return false
		}
	}
	if q.Start != nil && e.Timestamp.Before(*q.Start) {
		return false
	}
	if q.End != nil && e.Timestamp.After(*q.End) {
		return false
	}
	if len(q.StatusCodes) > 0 && !containsInt(q.StatusCodes, e.StatusCode) {
		return false
	}
	if len(q.Methods) > 0 && !containsFold(q.Methods, e.Method) {
		return false
	}
	if len(q.ClientIPs) > 0 && !containsString(q.ClientIPs, e.ClientIP) {
		return false
	}
	return true
}

// SearchResult is the paginated outcome of a search. Total counts the full
// matched set before offset/limit are applied.
type SearchResult struct {
	Results []*LogEntry `json:"results"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// ClearCriteria selects indexed entries for removal. Force clears the whole
// index for the subsystem regardless of the other fields. Durable files are
// never touched by a clear.
type ClearCriteria struct {
	Force       bool       `json:"force"`
	StatusCodes []int      `json:"status_codes,omitempty"`
	OlderThan   *time.Time `json:"older_than,omitempty"`
	Text        string     `json:"text,omitempty"`
}

// Selects reports whether the criteria match an indexed entry.
func (c *ClearCriteria) Selects(e *LogEntry, searchable string) bool {
	if c.Force {
		return true
	}
	matched := false
	if len(c.StatusCodes) > 0 {
		if !containsInt(c.StatusCodes, e.StatusCode) {
			return false
		}
		matched = true
	}
	if c.OlderThan != nil {
		if !e.Timestamp.Before(*c.OlderThan) {
			return false
		}
		matched = true
	}
	if c.Text != "" {
		if searchable == "" {
			searchable = e.Searchable()
		}
		if !strings.Contains(searchable, strings.ToLower(c.Text)) {
			return false
		}
		matched = true
	}
	return matched
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
