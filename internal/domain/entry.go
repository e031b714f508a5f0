package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ErrorInfo describes a failure attached to a log entry.
type ErrorInfo struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// LogEntry is the canonical structure of one activity record. Entries are
// immutable once constructed.
type LogEntry struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	Subsystem       string            `json:"subsystem"`
	Method          string            `json:"method,omitempty"`
	URL             string            `json:"url,omitempty"`
	Path            string            `json:"path,omitempty"`
	ClientIP        string            `json:"client_ip,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	Browser         string            `json:"browser,omitempty"`
	OS              string            `json:"os,omitempty"`
	IsMobile        bool              `json:"is_mobile,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	StatusCode      int               `json:"status_code"`
	ResponseSize    int64             `json:"response_size"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ExecutionTimeMs float64           `json:"execution_time_ms"`
	CacheStatus     string            `json:"cache_status,omitempty"`
	Caller          string            `json:"caller,omitempty"`
	Error           *ErrorInfo        `json:"error,omitempty"`
	SubsystemData   json.RawMessage   `json:"subsystem_data,omitempty"`
	ResponseSnippet string            `json:"response_snippet,omitempty"`
}

// IsError reports whether the entry belongs in the errors log class.
func (e *LogEntry) IsError() bool {
	return e.Error != nil || e.StatusCode >= 400
}

// Searchable builds the lowercase blob used for free-text matching. The same
// blob is precomputed when an entry is indexed and synthesized on demand for
// stream filtering.
func (e *LogEntry) Searchable() string {
	var b strings.Builder
	b.Grow(len(e.Method) + len(e.URL) + len(e.Path) + len(e.UserAgent) + 32)
	b.WriteString(e.Method)
	b.WriteByte(' ')
	b.WriteString(e.URL)
	b.WriteByte(' ')
	b.WriteString(e.Path)
	b.WriteByte(' ')
	b.WriteString(e.UserAgent)
	if e.Error != nil {
		b.WriteByte(' ')
		b.WriteString(e.Error.Message)
	}
	if len(e.SubsystemData) > 0 {
		b.WriteByte(' ')
		b.Write(e.SubsystemData)
	}
	return strings.ToLower(b.String())
}

// RequestData is the collaborator-facing payload accepted by
// SubsystemLogger.LogRequest. Collaborators never construct LogEntry directly.
type RequestData struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Path            string            `json:"path"`
	ClientIP        string            `json:"client_ip"`
	UserAgent       string            `json:"user_agent"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	StatusCode      int               `json:"status_code"`
	ResponseSize    int64             `json:"response_size"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ExecutionTimeMs float64           `json:"execution_time_ms"`
	CacheStatus     string            `json:"cache_status,omitempty"`
	Caller          string            `json:"caller,omitempty"`
	Error           *ErrorInfo        `json:"error,omitempty"`
	SubsystemData   json.RawMessage   `json:"subsystem_data,omitempty"`
	ResponsePayload []byte            `json:"-"`
	ContentType     string            `json:"-"`
	IncludeStack    bool              `json:"-"`
}
