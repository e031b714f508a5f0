package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgestack/logcenter/internal/adapter/metrics"
	"github.com/edgestack/logcenter/internal/domain"
)

const maxLineSize = 64 * 1024

// LogManager is the slice of the central registry the push server depends on.
type LogManager interface {
	Authenticate(key string, required domain.Permission) (domain.AuthResult, error)
	ListSubsystems() []string
	SearchLogs(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error)
	SubscribeEntries(fn func(domain.EntryEvent))
}

// Config controls the push server.
type Config struct {
	Addr              string
	MaxConnections    int
	HeartbeatInterval time.Duration
	MessagesPerSec    int
}

// Server accepts persistent push connections, authenticates them against the
// registry's key store and delivers matching entries in real time.
type Server struct {
	cfg     Config
	log     *slog.Logger
	manager LogManager
	metrics *metrics.Metrics

	ln   net.Listener
	stop chan struct{}
	wg   sync.WaitGroup

	mu    sync.RWMutex
	conns map[string]*Conn
}

// New wires the server to the manager's entry events. Call Start to begin
// accepting connections.
func New(cfg Config, manager LogManager, logger *slog.Logger, m *metrics.Metrics) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MessagesPerSec <= 0 {
		cfg.MessagesPerSec = 10
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}

	s := &Server{
		cfg:     cfg,
		log:     logger.With("component", "stream_server"),
		manager: manager,
		metrics: m,
		stop:    make(chan struct{}),
		conns:   make(map[string]*Conn),
	}
	manager.SubscribeEntries(s.Broadcast)
	return s
}

// Start begins listening and runs the accept and heartbeat loops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("stream server listening", "addr", ln.Addr().String())

	s.wg.Add(2)
	go s.acceptLoop()
	go s.heartbeatLoop()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				s.log.Warn("accept failed", "error", err)
				continue
			}
		}

		s.mu.Lock()
		if len(s.conns) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.rejectConn(raw)
			continue
		}
		c := newConn(uuid.NewString(), raw, s)
		s.conns[c.id] = c
		count := len(s.conns)
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.StreamConnections.Set(float64(count))
		}
		s.log.Info("push connection opened", "conn", c.id, "remote", raw.RemoteAddr().String())

		go c.writeLoop()
		s.wg.Add(1)
		go s.readLoop(c)

		c.send(ServerMessage{Type: TypeWelcome, Message: "authenticate to subscribe"})
	}
}

// rejectConn answers a connection beyond the capacity cap with a distinct
// close reason and drops it.
func (s *Server) rejectConn(raw net.Conn) {
	msg, _ := json.Marshal(stamp(ServerMessage{
		Type:    TypeError,
		Code:    CodeCapacity,
		Message: "connection limit reached",
	}))
	_ = raw.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = raw.Write(append(msg, '\n'))
	_ = raw.Close()
	s.log.Warn("rejected connection over capacity", "remote", raw.RemoteAddr().String())
}

func (s *Server) readLoop(c *Conn) {
	defer s.wg.Done()
	defer s.removeConn(c, "read loop ended")

	scanner := bufio.NewScanner(c.raw)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.send(ServerMessage{Type: TypeError, Code: CodeBadMessage, Message: "malformed message"})
			continue
		}
		c.handleMessage(msg)
	}
}

// Broadcast visits every open connection and delivers the entry to those that
// are authenticated, subscribed and matching. One connection's failure never
// affects another: delivery is a non-blocking enqueue per connection.
func (s *Server) Broadcast(ev domain.EntryEvent) {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.deliver(ev)
	}
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) removeConn(c *Conn, reason string) {
	s.mu.Lock()
	_, present := s.conns[c.id]
	delete(s.conns, c.id)
	count := len(s.conns)
	s.mu.Unlock()

	c.close()
	if present {
		if s.metrics != nil {
			s.metrics.StreamConnections.Set(float64(count))
		}
		s.log.Info("push connection closed", "conn", c.id, "reason", reason)
	}
}

// heartbeatLoop pings every open connection on a fixed interval and closes
// connections that have not acknowledged within twice the interval.
func (s *Server) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(-2 * s.cfg.HeartbeatInterval)
			s.mu.RLock()
			conns := make([]*Conn, 0, len(s.conns))
			for _, c := range s.conns {
				conns = append(conns, c)
			}
			s.mu.RUnlock()

			for _, c := range conns {
				if c.lastSeen().Before(deadline) {
					s.removeConn(c, "heartbeat timeout")
					continue
				}
				c.send(ServerMessage{Type: TypePing})
			}
		}
	}
}

// Shutdown stops the heartbeat, notifies and closes every connection, closes
// the listener and waits for the loops to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*Conn)
	s.mu.Unlock()

	notice, _ := json.Marshal(stamp(ServerMessage{Type: TypeShutdown, Message: "server shutting down"}))
	notice = append(notice, '\n')
	for _, c := range conns {
		_ = c.raw.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, _ = c.raw.Write(notice)
		c.close()
	}

	if s.ln != nil {
		_ = s.ln.Close()
	}
	if s.metrics != nil {
		s.metrics.StreamConnections.Set(0)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("stream server shut down")
	return nil
}
