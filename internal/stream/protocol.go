package stream

import (
	"strings"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
)

// Message types exchanged on a push connection.
const (
	// Client → server.
	TypeAuthenticate = "authenticate"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSetFilters   = "setFilters"
	TypeGetHistory   = "getHistory"
	TypePing         = "ping"
	TypePong         = "pong"

	// Server → client.
	TypeWelcome       = "welcome"
	TypeAuthenticated = "authenticated"
	TypeSubscribed    = "subscribed"
	TypeUnsubscribed  = "unsubscribed"
	TypeFiltersSet    = "filtersSet"
	TypeEntry         = "entry"
	TypeHistory       = "history"
	TypeError         = "error"
	TypeShutdown      = "shutdown"
)

// Error codes carried in error envelopes.
const (
	CodeAuthRequired     = "auth_required"
	CodeInvalidKey       = "invalid_key"
	CodeInsufficientPerm = "insufficient_permission"
	CodeRateLimited      = "rate_limited"
	CodeCapacity         = "capacity"
	CodeBadMessage       = "bad_message"
)

// ClientMessage is the single inbound message shape; Type selects which
// fields are meaningful.
type ClientMessage struct {
	Type       string      `json:"type"`
	APIKey     string      `json:"apiKey,omitempty"`
	Subsystems []string    `json:"subsystems,omitempty"`
	Filters    *FilterSpec `json:"filters,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

// ServerMessage is the outbound envelope. Every server-to-client message
// carries Type and ServerTimestamp.
type ServerMessage struct {
	Type            string               `json:"type"`
	Message         string               `json:"message,omitempty"`
	Code            string               `json:"code,omitempty"`
	Subsystem       string               `json:"subsystem,omitempty"`
	Subsystems      []string             `json:"subsystems,omitempty"`
	Permissions     []domain.Permission  `json:"permissions,omitempty"`
	Entry           *domain.LogEntry     `json:"entry,omitempty"`
	History         *domain.SearchResult `json:"history,omitempty"`
	ServerTimestamp string               `json:"serverTimestamp"`
}

func stamp(msg ServerMessage) ServerMessage {
	msg.ServerTimestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return msg
}

// FilterSpec is a connection's active filter predicate. MinLevel is accepted
// and stored but never enforced.
type FilterSpec struct {
	StatusCodes []int    `json:"statusCodes,omitempty"`
	Methods     []string `json:"methods,omitempty"`
	ClientIPs   []string `json:"clientIps,omitempty"`
	Text        string   `json:"text,omitempty"`
	MinLevel    string   `json:"minLevel,omitempty"`
}

// Matches reports whether an entry passes the filter. A nil filter passes
// everything.
func (f *FilterSpec) Matches(e *domain.LogEntry) bool {
	if f == nil {
		return true
	}
	if len(f.StatusCodes) > 0 && !containsInt(f.StatusCodes, e.StatusCode) {
		return false
	}
	if len(f.Methods) > 0 && !containsFold(f.Methods, e.Method) {
		return false
	}
	if len(f.ClientIPs) > 0 && !containsString(f.ClientIPs, e.ClientIP) {
		return false
	}
	if f.Text != "" && !strings.Contains(e.Searchable(), strings.ToLower(f.Text)) {
		return false
	}
	return true
}

// Query translates the filter into the equivalent search query fields.
func (f *FilterSpec) Query(subsystems []string, limit int) domain.SearchQuery {
	q := domain.SearchQuery{Subsystems: subsystems, Limit: limit}
	if f != nil {
		q.StatusCodes = f.StatusCodes
		q.Methods = f.Methods
		q.ClientIPs = f.ClientIPs
		q.Text = f.Text
	}
	return q
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
