package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
)

type fakeManager struct {
	mu          sync.Mutex
	lastQuery   domain.SearchQuery
	searchRes   *domain.SearchResult
	searchCalls int
	subscribers []func(domain.EntryEvent)
}

func (f *fakeManager) Authenticate(key string, required domain.Permission) (domain.AuthResult, error) {
	switch key {
	case "good-key":
		return domain.AuthResult{Name: "tester", Permissions: []domain.Permission{domain.PermissionRead}}, nil
	case "no-read-key":
		return domain.AuthResult{}, domain.ErrInsufficientPermission
	default:
		return domain.AuthResult{}, domain.ErrInvalidKey
	}
}

func (f *fakeManager) ListSubsystems() []string { return []string{"api", "web"} }

func (f *fakeManager) SearchLogs(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	f.searchCalls++
	if f.searchRes != nil {
		return f.searchRes, nil
	}
	return &domain.SearchResult{Results: nil, Limit: q.Limit}, nil
}

func (f *fakeManager) SubscribeEntries(fn func(domain.EntryEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, fn)
}

func (f *fakeManager) query() domain.SearchQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeManager) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

func startServer(t *testing.T, cfg Config, mgr LogManager) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if mgr == nil {
		mgr = &fakeManager{}
	}
	srv := New(cfg, mgr, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

type testClient struct {
	t       *testing.T
	conn    net.Conn
	scanner *bufio.Scanner
}

func dialServer(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), maxLineSize)
	return &testClient{t: t, conn: conn, scanner: sc}
}

func (c *testClient) send(msg ClientMessage) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("marshal client message: %v", err)
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		c.t.Fatalf("write client message: %v", err)
	}
}

func (c *testClient) read() ServerMessage {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if !c.scanner.Scan() {
		c.t.Fatalf("connection closed or read timed out: %v", c.scanner.Err())
	}
	var msg ServerMessage
	if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
		c.t.Fatalf("malformed server message %q: %v", c.scanner.Text(), err)
	}
	return msg
}

// readType reads until a message of the wanted type arrives, skipping
// server-initiated pings.
func (c *testClient) readType(want string) ServerMessage {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		msg := c.read()
		if msg.Type == want {
			return msg
		}
		if msg.Type == TypePing {
			continue
		}
		c.t.Fatalf("got message type %q (code %q), want %q", msg.Type, msg.Code, want)
	}
	c.t.Fatalf("no %q message after 20 reads", want)
	return ServerMessage{}
}

func (c *testClient) authenticate(key string) ServerMessage {
	c.t.Helper()
	c.send(ClientMessage{Type: TypeAuthenticate, APIKey: key})
	return c.read()
}

func TestWelcomeAndAuthenticate(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)

	if msg := client.read(); msg.Type != TypeWelcome {
		t.Fatalf("first message type = %q, want welcome", msg.Type)
	}

	msg := client.authenticate("good-key")
	if msg.Type != TypeAuthenticated {
		t.Fatalf("auth reply type = %q, want authenticated", msg.Type)
	}
	if msg.Message != "tester" {
		t.Errorf("auth reply name = %q, want tester", msg.Message)
	}
	if len(msg.Subsystems) != 2 {
		t.Errorf("auth reply subsystems = %v, want the full catalogue", msg.Subsystems)
	}
	if msg.ServerTimestamp == "" {
		t.Error("server timestamp missing")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)

	tests := []struct {
		name     string
		key      string
		wantCode string
	}{
		{name: "unknown key", key: "bogus", wantCode: CodeInvalidKey},
		{name: "insufficient permission", key: "no-read-key", wantCode: CodeInsufficientPerm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := dialServer(t, srv)
			client.read() // welcome
			msg := client.authenticate(tt.key)
			if msg.Type != TypeError || msg.Code != tt.wantCode {
				t.Errorf("reply = %q/%q, want error/%q", msg.Type, msg.Code, tt.wantCode)
			}
		})
	}
}

func TestSubscribeRequiresAuth(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome

	client.send(ClientMessage{Type: TypeSubscribe, Subsystems: []string{"api"}})
	msg := client.read()
	if msg.Type != TypeError || msg.Code != CodeAuthRequired {
		t.Errorf("reply = %q/%q, want error/auth_required", msg.Type, msg.Code)
	}
}

func TestSubscribeIgnoresUnknownSubsystems(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome
	client.authenticate("good-key")

	client.send(ClientMessage{Type: TypeSubscribe, Subsystems: []string{"api", "ghost"}})
	msg := client.read()
	if msg.Type != TypeSubscribed {
		t.Fatalf("reply type = %q, want subscribed", msg.Type)
	}
	if len(msg.Subsystems) != 1 || msg.Subsystems[0] != "api" {
		t.Errorf("subscribed = %v, want [api]", msg.Subsystems)
	}
}

func TestUnsubscribeWithoutAuth(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome

	client.send(ClientMessage{Type: TypeUnsubscribe, Subsystems: []string{"api"}})
	if msg := client.read(); msg.Type != TypeUnsubscribed {
		t.Errorf("reply type = %q, want unsubscribed even without auth", msg.Type)
	}
}

func TestBroadcastDeliversOnlySubscribed(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome
	client.authenticate("good-key")
	client.send(ClientMessage{Type: TypeSubscribe, Subsystems: []string{"api"}})
	client.readType(TypeSubscribed)

	srv.Broadcast(domain.EntryEvent{Subsystem: "web", Entry: &domain.LogEntry{ID: "w1", Subsystem: "web"}})
	srv.Broadcast(domain.EntryEvent{Subsystem: "api", Entry: &domain.LogEntry{ID: "a1", Subsystem: "api"}})
	client.send(ClientMessage{Type: TypePing})

	var entries []ServerMessage
	for {
		msg := client.read()
		if msg.Type == TypePong {
			break
		}
		if msg.Type == TypeEntry {
			entries = append(entries, msg)
		}
	}
	if len(entries) != 1 {
		t.Fatalf("delivered %d entries, want 1 (unsubscribed subsystem excluded)", len(entries))
	}
	if entries[0].Subsystem != "api" || entries[0].Entry == nil || entries[0].Entry.ID != "a1" {
		t.Errorf("delivered entry = %+v, want api/a1", entries[0])
	}
}

func TestFiltersGateDelivery(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome
	client.authenticate("good-key")
	client.send(ClientMessage{Type: TypeSubscribe, Subsystems: []string{"api"}})
	client.readType(TypeSubscribed)

	client.send(ClientMessage{Type: TypeSetFilters, Filters: &FilterSpec{StatusCodes: []int{500}}})
	client.readType(TypeFiltersSet)

	srv.Broadcast(domain.EntryEvent{Subsystem: "api", Entry: &domain.LogEntry{ID: "ok", Subsystem: "api", StatusCode: 200}})
	srv.Broadcast(domain.EntryEvent{Subsystem: "api", Entry: &domain.LogEntry{ID: "bad", Subsystem: "api", StatusCode: 500}})

	msg := client.readType(TypeEntry)
	if msg.Entry.ID != "bad" {
		t.Errorf("delivered entry = %q, want the 500 only", msg.Entry.ID)
	}
}

func TestGetHistoryUsesSubscriptionsAndFilters(t *testing.T) {
	mgr := &fakeManager{searchRes: &domain.SearchResult{
		Results: []*domain.LogEntry{{ID: "h1", Subsystem: "api"}},
		Total:   1,
	}}
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, mgr)
	client := dialServer(t, srv)
	client.read() // welcome
	client.authenticate("good-key")
	client.send(ClientMessage{Type: TypeSubscribe, Subsystems: []string{"api"}})
	client.readType(TypeSubscribed)
	client.send(ClientMessage{Type: TypeSetFilters, Filters: &FilterSpec{Text: "checkout"}})
	client.readType(TypeFiltersSet)

	client.send(ClientMessage{Type: TypeGetHistory, Limit: 9999})
	msg := client.readType(TypeHistory)
	if msg.History == nil || msg.History.Total != 1 {
		t.Fatalf("history = %+v, want the canned result", msg.History)
	}

	q := mgr.query()
	if len(q.Subsystems) != 1 || q.Subsystems[0] != "api" {
		t.Errorf("history query subsystems = %v, want [api]", q.Subsystems)
	}
	if q.Text != "checkout" {
		t.Errorf("history query text = %q, want checkout", q.Text)
	}
	if q.Limit != historyLimitMax {
		t.Errorf("history query limit = %d, want clamped to %d", q.Limit, historyLimitMax)
	}
}

func TestGetHistoryEmptyWithoutSubscriptions(t *testing.T) {
	mgr := &fakeManager{searchRes: &domain.SearchResult{
		Results: []*domain.LogEntry{{ID: "hidden", Subsystem: "api"}},
		Total:   1,
	}}
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, mgr)
	client := dialServer(t, srv)
	client.read() // welcome
	client.authenticate("good-key")

	client.send(ClientMessage{Type: TypeGetHistory})
	msg := client.readType(TypeHistory)
	if msg.History == nil || msg.History.Total != 0 || len(msg.History.Results) != 0 {
		t.Fatalf("history = %+v, want empty for a connection with no subscriptions", msg.History)
	}
	if mgr.searchCount() != 0 {
		t.Error("a search ran for a connection with no subscriptions")
	}
}

func TestGetHistoryRequiresAuth(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome

	client.send(ClientMessage{Type: TypeGetHistory})
	msg := client.read()
	if msg.Type != TypeError || msg.Code != CodeAuthRequired {
		t.Errorf("reply = %q/%q, want error/auth_required", msg.Type, msg.Code)
	}
}

func TestRateLimitAnswersWithErrorAndKeepsConnection(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 2}, nil)
	client := dialServer(t, srv)
	client.read() // welcome

	for i := 0; i < 3; i++ {
		client.send(ClientMessage{Type: TypePing})
	}

	var limited bool
	for i := 0; i < 3; i++ {
		msg := client.read()
		if msg.Type == TypeError && msg.Code == CodeRateLimited {
			limited = true
		}
	}
	if !limited {
		t.Fatal("third message in the window was not rate limited")
	}

	// The connection survives: the window resets after a second.
	time.Sleep(1100 * time.Millisecond)
	client.send(ClientMessage{Type: TypePing})
	if msg := client.read(); msg.Type != TypePong {
		t.Errorf("post-window reply type = %q, want pong", msg.Type)
	}
}

func TestMalformedMessageAnswered(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome

	if _, err := client.conn.Write([]byte("{not json\n")); err != nil {
		t.Fatalf("write error = %v", err)
	}
	msg := client.read()
	if msg.Type != TypeError || msg.Code != CodeBadMessage {
		t.Errorf("reply = %q/%q, want error/bad_message", msg.Type, msg.Code)
	}
}

func TestCapacityRejection(t *testing.T) {
	srv := startServer(t, Config{MaxConnections: 1, HeartbeatInterval: time.Minute, MessagesPerSec: 100}, nil)

	first := dialServer(t, srv)
	first.read() // welcome

	second := dialServer(t, srv)
	msg := second.read()
	if msg.Type != TypeError || msg.Code != CodeCapacity {
		t.Fatalf("over-capacity reply = %q/%q, want error/capacity", msg.Type, msg.Code)
	}
	_ = second.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if second.scanner.Scan() {
		t.Error("rejected connection should be closed after the capacity notice")
	}
	if srv.ConnCount() != 1 {
		t.Errorf("ConnCount() = %d, want 1", srv.ConnCount())
	}
}

func TestHeartbeatTimeoutClosesSilentConnection(t *testing.T) {
	srv := startServer(t, Config{HeartbeatInterval: 50 * time.Millisecond, MessagesPerSec: 100}, nil)
	client := dialServer(t, srv)
	client.read() // welcome

	// Never answer pings; the server closes the connection after two missed
	// intervals.
	deadline := time.Now().Add(2 * time.Second)
	for srv.ConnCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("silent connection not closed by heartbeat timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Drain until the closed socket ends the stream on the client side too.
	_ = client.conn.SetReadDeadline(time.Now().Add(time.Second))
	for client.scanner.Scan() {
	}
}

func TestShutdownNotifiesClients(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0", HeartbeatInterval: time.Minute, MessagesPerSec: 100},
		&fakeManager{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	client := dialServer(t, srv)
	client.read() // welcome

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	msg := client.readType(TypeShutdown)
	if msg.Message != "server shutting down" {
		t.Errorf("shutdown notice = %q", msg.Message)
	}
}
