package sublogger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgestack/logcenter/internal/adapter/metrics"
	"github.com/edgestack/logcenter/internal/domain"
)

// Class identifies one of the per-day log files a subsystem writes.
type Class string

const (
	ClassRequests Class = "requests"
	ClassErrors   Class = "errors"
	ClassCombined Class = "combined"
)

const (
	dateLayout          = "2006-01-02"
	filePerm            = 0644
	rotateCheckInterval = 60 * time.Second
)

// Config controls one subsystem logger.
type Config struct {
	Name          string
	Dir           string
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
	Compress      bool
}

// Logger owns one subsystem's buffer, files, rotation and retention. The
// buffer, counters and file handles are mutated only under the logger's own
// mutex: no external component touches them directly.
type Logger struct {
	cfg  Config
	log  *slog.Logger
	sink domain.EventSink
	m    *metrics.Metrics

	mu            sync.Mutex
	buf           []*domain.LogEntry
	pending       []*domain.LogEntry
	date          string
	files         map[Class]*os.File
	totalRequests int64
	totalErrors   int64
	totalBytes    int64
	closed        bool

	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}
}

// Stats is a point-in-time snapshot of a subsystem logger. ErrorRate is 0 when
// TotalRequests is 0; callers must guard on TotalRequests before interpreting
// it.
type Stats struct {
	Subsystem         string  `json:"subsystem"`
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	TotalBytes        int64   `json:"total_bytes"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	ErrorRate         float64 `json:"error_rate"`
	BufferSize        int     `json:"buffer_size"`
	OpenFiles         int     `json:"open_files"`
}

// New creates the subsystem's log directory, starts the maintenance loop and
// returns the logger. sink may be nil for loggers that emit no events.
func New(cfg Config, logger *slog.Logger, sink domain.EventSink, m *metrics.Metrics) (*Logger, error) {
	if cfg.Name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.Dir, err)
	}

	l := &Logger{
		cfg:       cfg,
		log:       logger.With("component", "sublogger", "subsystem", cfg.Name),
		sink:      sink,
		m:         m,
		date:      time.Now().Format(dateLayout),
		files:     make(map[Class]*os.File),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go l.run()
	l.emitLifecycle(domain.LifecycleStarted)
	return l, nil
}

// Name returns the subsystem name.
func (l *Logger) Name() string { return l.cfg.Name }

// Dir returns the subsystem's log directory.
func (l *Logger) Dir() string { return l.cfg.Dir }

// LogRequest constructs an entry from collaborator data and appends it to the
// buffer. The calling path never performs file I/O: a full buffer moves the
// drained entries onto the pending queue and triggers an asynchronous flush.
func (l *Logger) LogRequest(data domain.RequestData) (string, error) {
	entry := l.buildEntry(data)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", domain.ErrClosed
	}
	l.buf = append(l.buf, entry)
	l.totalRequests++
	if entry.IsError() {
		l.totalErrors++
	}
	l.totalBytes += entry.ResponseSize

	var spawn bool
	if len(l.buf) >= l.cfg.BufferSize {
		l.pending = append(l.pending, l.buf...)
		l.buf = nil
		spawn = true
	}
	l.mu.Unlock()

	if l.m != nil {
		class := "request"
		if entry.IsError() {
			class = "error"
		}
		l.m.EntriesTotal.WithLabelValues(l.cfg.Name, class).Inc()
	}
	if l.sink != nil {
		l.sink.OnEntry(domain.EntryEvent{Subsystem: l.cfg.Name, Entry: entry})
	}
	if spawn {
		go l.flushPending()
	}

	return entry.ID, nil
}

func (l *Logger) buildEntry(data domain.RequestData) *domain.LogEntry {
	browser, osName, mobile := ClassifyUserAgent(data.UserAgent)

	entry := &domain.LogEntry{
		ID:              uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Subsystem:       l.cfg.Name,
		Method:          data.Method,
		URL:             data.URL,
		Path:            data.Path,
		ClientIP:        data.ClientIP,
		UserAgent:       data.UserAgent,
		Browser:         browser,
		OS:              osName,
		IsMobile:        mobile,
		RequestHeaders:  data.RequestHeaders,
		StatusCode:      data.StatusCode,
		ResponseSize:    data.ResponseSize,
		ResponseHeaders: data.ResponseHeaders,
		ExecutionTimeMs: data.ExecutionTimeMs,
		CacheStatus:     data.CacheStatus,
		Caller:          data.Caller,
		SubsystemData:   data.SubsystemData,
	}

	if data.Error != nil {
		errInfo := *data.Error
		if !data.IncludeStack {
			errInfo.Stack = ""
		}
		entry.Error = &errInfo
	}

	contentType := data.ContentType
	if contentType == "" && data.ResponseHeaders != nil {
		contentType = data.ResponseHeaders["Content-Type"]
	}
	entry.ResponseSnippet = CaptureSnippet(data.ResponsePayload, contentType)

	return entry
}

// Flush synchronously writes all buffered entries to the per-day files.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Logger) flushLocked() error {
	l.pending = append(l.pending, l.buf...)
	l.buf = nil
	if len(l.pending) == 0 {
		return nil
	}
	batch := l.pending
	l.pending = nil
	return l.writeBatchLocked(batch)
}

// flushPending drains the pending queue in insertion order. Concurrent
// triggers serialize on the mutex and whoever wins writes everything queued
// so far, so per-file FIFO order holds regardless of goroutine scheduling.
func (l *Logger) flushPending() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) > 0 {
		batch := l.pending
		l.pending = nil
		_ = l.writeBatchLocked(batch)
	}
	if l.closed {
		l.closeFilesLocked()
	}
}

// writeBatchLocked appends the batch as NDJSON records: every entry goes to
// the combined file, error entries to the errors file and the remainder to the
// requests file, preserving insertion order per file. A write failure drops
// the rest of the batch for this cycle; there is no retry queue.
func (l *Logger) writeBatchLocked(batch []*domain.LogEntry) error {
	for _, entry := range batch {
		data, err := json.Marshal(entry)
		if err != nil {
			l.reportError("flush", fmt.Errorf("failed to marshal entry %s: %w", entry.ID, err))
			continue
		}
		data = append(data, '\n')

		class := ClassRequests
		if entry.IsError() {
			class = ClassErrors
		}
		for _, target := range []Class{ClassCombined, class} {
			f, err := l.fileLocked(target)
			if err != nil {
				l.dropBatch(err)
				return err
			}
			if _, err := f.Write(data); err != nil {
				l.dropBatch(fmt.Errorf("failed to write %s file: %w", target, err))
				return err
			}
		}
	}

	if l.m != nil {
		l.m.FlushesTotal.WithLabelValues("ok").Inc()
		l.m.FlushedEntries.Add(float64(len(batch)))
	}
	return nil
}

func (l *Logger) dropBatch(err error) {
	l.reportError("flush", err)
	if l.m != nil {
		l.m.FlushesTotal.WithLabelValues("error").Inc()
		l.m.DroppedBatches.Inc()
	}
}

func (l *Logger) fileLocked(class Class) (*os.File, error) {
	if l.files == nil {
		l.files = make(map[Class]*os.File)
	}
	if f, ok := l.files[class]; ok {
		return f, nil
	}

	path := filepath.Join(l.cfg.Dir, fmt.Sprintf("%s-%s.log", class, l.date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	l.files[class] = f
	return f, nil
}

func (l *Logger) closeFilesLocked() {
	for class, f := range l.files {
		if err := f.Close(); err != nil {
			l.log.Error("failed to close log file", "class", string(class), "error", err)
		}
	}
	l.files = make(map[Class]*os.File)
}

// Stats returns a snapshot of the logger's running counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	uptime := time.Since(l.startedAt).Seconds()
	s := Stats{
		Subsystem:     l.cfg.Name,
		TotalRequests: l.totalRequests,
		TotalErrors:   l.totalErrors,
		TotalBytes:    l.totalBytes,
		UptimeSeconds: uptime,
		BufferSize:    len(l.buf) + len(l.pending),
		OpenFiles:     len(l.files),
	}
	if uptime > 0 {
		s.RequestsPerSecond = float64(l.totalRequests) / uptime
	}
	if l.totalRequests > 0 {
		s.ErrorRate = float64(l.totalErrors) / float64(l.totalRequests)
	}
	return s
}

// Close stops the maintenance loop, flushes the remaining buffer and closes
// all file handles. It is idempotent and runs even when triggered by an
// unexpected signal path.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stop)
	err := l.flushLocked()
	l.closeFilesLocked()
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.emitLifecycle(domain.LifecycleShutdown)
	return err
}

func (l *Logger) reportError(op string, err error) {
	l.log.Error("background maintenance failure", "op", op, "error", err)
	if l.sink != nil {
		l.sink.OnError(domain.ErrorEvent{Subsystem: l.cfg.Name, Op: op, Err: err, At: time.Now()})
	}
}

func (l *Logger) emitLifecycle(kind domain.LifecycleKind) {
	if l.sink != nil {
		l.sink.OnLifecycle(domain.LifecycleEvent{Subsystem: l.cfg.Name, Kind: kind, At: time.Now()})
	}
}
