package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
)

const historyLimitMax = 500

// Conn is the server-side state of one push connection. It lives only for the
// connected lifetime and is destroyed on close or heartbeat timeout.
type Conn struct {
	id  string
	raw net.Conn
	srv *Server
	out chan []byte

	mu          sync.Mutex
	authed      bool
	perms       []domain.Permission
	subs        map[string]struct{}
	filters     *FilterSpec
	msgCount    int
	windowStart time.Time
	lastPong    time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id string, raw net.Conn, srv *Server) *Conn {
	now := time.Now()
	return &Conn{
		id:          id,
		raw:         raw,
		srv:         srv,
		out:         make(chan []byte, 64),
		subs:        make(map[string]struct{}),
		windowStart: now,
		lastPong:    now,
		closed:      make(chan struct{}),
	}
}

// writeLoop drains the outbound channel onto the wire. A write failure closes
// the connection; other connections are unaffected.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case data, ok := <-c.out:
			if !ok {
				return
			}
			if _, err := c.raw.Write(data); err != nil {
				c.srv.log.Debug("connection write failed", "conn", c.id, "error", err)
				c.srv.removeConn(c, "write failure")
				return
			}
		}
	}
}

// send enqueues an envelope without blocking. A full outbound buffer drops
// the message for this connection only.
func (c *Conn) send(msg ServerMessage) {
	data, err := json.Marshal(stamp(msg))
	if err != nil {
		c.srv.log.Error("failed to marshal stream message", "type", msg.Type, "error", err)
		return
	}
	data = append(data, '\n')

	select {
	case c.out <- data:
		if c.srv.metrics != nil {
			c.srv.metrics.StreamMessages.WithLabelValues("out", msg.Type).Inc()
		}
	default:
		c.srv.log.Warn("outbound buffer full, dropping message", "conn", c.id, "type", msg.Type)
	}
}

// overRateLimit counts the message against the fixed 1-second window and
// reports whether the per-second cap is exceeded. Over-cap messages are
// answered with an error reply; the connection stays open.
func (c *Conn) overRateLimit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.msgCount = 0
	}
	c.msgCount++
	return c.msgCount > c.srv.cfg.MessagesPerSec
}

func (c *Conn) handleMessage(msg ClientMessage) {
	if c.srv.metrics != nil {
		c.srv.metrics.StreamMessages.WithLabelValues("in", msg.Type).Inc()
	}
	if c.overRateLimit(time.Now()) {
		c.send(ServerMessage{Type: TypeError, Code: CodeRateLimited, Message: "rate limit exceeded"})
		return
	}

	switch msg.Type {
	case TypeAuthenticate:
		c.handleAuthenticate(msg)
	case TypeSubscribe:
		c.handleSubscribe(msg)
	case TypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case TypeSetFilters:
		c.handleSetFilters(msg)
	case TypeGetHistory:
		c.handleGetHistory(msg)
	case TypePing:
		c.touch()
		c.send(ServerMessage{Type: TypePong})
	case TypePong:
		c.touch()
	default:
		c.send(ServerMessage{Type: TypeError, Code: CodeBadMessage, Message: "unknown message type"})
	}
}

func (c *Conn) handleAuthenticate(msg ClientMessage) {
	res, err := c.srv.manager.Authenticate(msg.APIKey, domain.PermissionRead)
	if err != nil {
		code := CodeInvalidKey
		if errors.Is(err, domain.ErrInsufficientPermission) {
			code = CodeInsufficientPerm
		}
		c.send(ServerMessage{Type: TypeError, Code: code, Message: "authentication failed"})
		return
	}

	c.mu.Lock()
	c.authed = true
	c.perms = res.Permissions
	c.mu.Unlock()

	c.send(ServerMessage{
		Type:        TypeAuthenticated,
		Message:     res.Name,
		Permissions: res.Permissions,
		Subsystems:  c.srv.manager.ListSubsystems(),
	})
}

// handleSubscribe adds known subsystem names to the subscription set. Unknown
// names are silently ignored.
func (c *Conn) handleSubscribe(msg ClientMessage) {
	c.mu.Lock()
	authed := c.authed
	c.mu.Unlock()
	if !authed {
		c.send(ServerMessage{Type: TypeError, Code: CodeAuthRequired, Message: "authentication required"})
		return
	}

	known := make(map[string]struct{})
	for _, name := range c.srv.manager.ListSubsystems() {
		known[name] = struct{}{}
	}

	var added []string
	c.mu.Lock()
	for _, name := range msg.Subsystems {
		if _, ok := known[name]; !ok {
			continue
		}
		c.subs[name] = struct{}{}
		added = append(added, name)
	}
	c.mu.Unlock()

	c.send(ServerMessage{Type: TypeSubscribed, Subsystems: added})
}

// handleUnsubscribe removes names from the subscription set. Unlike subscribe
// it performs no auth check.
func (c *Conn) handleUnsubscribe(msg ClientMessage) {
	c.mu.Lock()
	for _, name := range msg.Subsystems {
		delete(c.subs, name)
	}
	c.mu.Unlock()

	c.send(ServerMessage{Type: TypeUnsubscribed, Subsystems: msg.Subsystems})
}

// handleSetFilters replaces the active filter predicate. No auth check; the
// minLevel field is accepted but never enforced.
func (c *Conn) handleSetFilters(msg ClientMessage) {
	c.mu.Lock()
	c.filters = msg.Filters
	c.mu.Unlock()

	c.send(ServerMessage{Type: TypeFiltersSet})
}

func (c *Conn) handleGetHistory(msg ClientMessage) {
	c.mu.Lock()
	authed := c.authed
	subs := make([]string, 0, len(c.subs))
	for name := range c.subs {
		subs = append(subs, name)
	}
	filters := c.filters
	c.mu.Unlock()

	if !authed {
		c.send(ServerMessage{Type: TypeError, Code: CodeAuthRequired, Message: "authentication required"})
		return
	}

	limit := msg.Limit
	if limit <= 0 || limit > historyLimitMax {
		limit = historyLimitMax
	}

	// History is restricted to the connection's subscriptions. An empty set
	// must not widen into an all-subsystems query.
	if len(subs) == 0 {
		c.send(ServerMessage{Type: TypeHistory, History: &domain.SearchResult{Limit: limit}})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := c.srv.manager.SearchLogs(ctx, filters.Query(subs, limit))
	if err != nil {
		c.send(ServerMessage{Type: TypeError, Code: CodeBadMessage, Message: "history lookup failed"})
		return
	}
	c.send(ServerMessage{Type: TypeHistory, History: result})
}

// deliver pushes an entry event if the connection is authenticated,
// subscribed to the subsystem and the entry passes the active filter.
func (c *Conn) deliver(ev domain.EntryEvent) {
	c.mu.Lock()
	authed := c.authed
	_, subscribed := c.subs[ev.Subsystem]
	filters := c.filters
	c.mu.Unlock()

	if !authed || !subscribed || !filters.Matches(ev.Entry) {
		return
	}
	c.send(ServerMessage{Type: TypeEntry, Subsystem: ev.Subsystem, Entry: ev.Entry})
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *Conn) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.raw.Close()
	})
}
