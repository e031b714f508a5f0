package manager

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edgestack/logcenter/internal/adapter/metrics"
	"github.com/edgestack/logcenter/internal/domain"
	"github.com/edgestack/logcenter/internal/sublogger"
)

// Config holds the manager-wide defaults applied to registered subsystems.
type Config struct {
	LogRoot          string
	BufferSize       int
	FlushInterval    time.Duration
	RetentionDays    int
	Compress         bool
	Streaming        bool
	IndexSize        int
	MaxSearchResults int
}

// Options carries the optional external adapters.
type Options struct {
	KeyPersistence domain.KeyPersistence
	AuditSink      domain.AuditSink
}

// SubsystemConfig overrides the manager defaults for one subsystem. Zero
// values keep the default; nil pointers keep the default toggles.
type SubsystemConfig struct {
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
	Compress      *bool
	Streaming     *bool
}

// Manager is the central registry of subsystem loggers, the API key store,
// the dual-tier search surface and the audit trail. Its key store and indexes
// are mutated only through its own methods.
type Manager struct {
	cfg        Config
	log        *slog.Logger
	baseLog    *slog.Logger
	metrics    *metrics.Metrics
	keyPersist domain.KeyPersistence
	auditSink  domain.AuditSink

	mu        sync.RWMutex
	loggers   map[string]*sublogger.Logger
	indexes   map[string]*Index
	streaming map[string]bool

	keys  *keyStore
	audit *sublogger.Logger

	subMu       sync.RWMutex
	subscribers []func(domain.EntryEvent)
}

// Stats aggregates per-subsystem snapshots, the key count and the indexed
// totals.
type Stats struct {
	Subsystems     map[string]sublogger.Stats `json:"subsystems"`
	TotalRequests  int64                      `json:"total_requests"`
	TotalErrors    int64                      `json:"total_errors"`
	KeyCount       int                        `json:"key_count"`
	IndexedEntries int                        `json:"indexed_entries"`
}

// New constructs the manager, registers the internal audit subsystem and
// seeds the key store (persisted keys first, then the default admin key if
// the store is empty).
func New(ctx context.Context, cfg Config, logger *slog.Logger, m *metrics.Metrics, opts Options) (*Manager, error) {
	mgr := &Manager{
		cfg:        cfg,
		log:        logger.With("component", "manager"),
		baseLog:    logger,
		metrics:    m,
		keyPersist: opts.KeyPersistence,
		auditSink:  opts.AuditSink,
		loggers:    make(map[string]*sublogger.Logger),
		indexes:    make(map[string]*Index),
		streaming:  make(map[string]bool),
		keys:       newKeyStore(),
	}

	audit, err := mgr.RegisterSubsystem(ctx, AuditSubsystem, nil)
	if err != nil {
		return nil, err
	}
	mgr.audit = audit

	mgr.loadPersistedKeys(ctx)
	return mgr, nil
}

// RegisterSubsystem constructs and wires a subsystem logger. Re-registering a
// name replaces the registry entry; the prior logger is closed best-effort in
// the background, so its in-flight buffer is not guaranteed to be flushed
// before the replacement is visible.
func (m *Manager) RegisterSubsystem(ctx context.Context, name string, sc *SubsystemConfig) (*sublogger.Logger, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, &domain.ValidationError{Field: "subsystem", Reason: "must be a non-empty name without path separators"}
	}

	cfg := sublogger.Config{
		Name:          name,
		Dir:           filepath.Join(m.cfg.LogRoot, name),
		BufferSize:    m.cfg.BufferSize,
		FlushInterval: m.cfg.FlushInterval,
		RetentionDays: m.cfg.RetentionDays,
		Compress:      m.cfg.Compress,
	}
	streaming := m.cfg.Streaming
	if sc != nil {
		if sc.BufferSize > 0 {
			cfg.BufferSize = sc.BufferSize
		}
		if sc.FlushInterval > 0 {
			cfg.FlushInterval = sc.FlushInterval
		}
		if sc.RetentionDays > 0 {
			cfg.RetentionDays = sc.RetentionDays
		}
		if sc.Compress != nil {
			cfg.Compress = *sc.Compress
		}
		if sc.Streaming != nil {
			streaming = *sc.Streaming
		}
	}

	lg, err := sublogger.New(cfg, m.baseLog, m, m.metrics)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	old := m.loggers[name]
	m.loggers[name] = lg
	m.streaming[name] = streaming
	if m.indexes[name] == nil {
		m.indexes[name] = newIndex(m.cfg.IndexSize)
	}
	m.mu.Unlock()

	if old != nil {
		go func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := old.Close(closeCtx); err != nil {
				m.log.Warn("failed to close replaced subsystem logger", "subsystem", name, "error", err)
			}
		}()
	}

	m.log.Info("registered subsystem", "subsystem", name, "replaced", old != nil)
	m.recordAudit(ctx, "subsystem_registered", map[string]any{"subsystem": name, "replaced": old != nil})
	return lg, nil
}

// GetSubsystem returns the registered logger for name.
func (m *Manager) GetSubsystem(name string) (*sublogger.Logger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lg, ok := m.loggers[name]
	return lg, ok
}

// ListSubsystems returns the registered subsystem names, sorted.
func (m *Manager) ListSubsystems() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SubsystemStats returns the snapshot statistics for one subsystem.
func (m *Manager) SubsystemStats(name string) (sublogger.Stats, error) {
	lg, ok := m.GetSubsystem(name)
	if !ok {
		return sublogger.Stats{}, domain.ErrNotFound
	}
	return lg.Stats(), nil
}

func (m *Manager) index(name string) *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[name]
}

// ClearSubsystemLogs removes matching entries from the subsystem's in-memory
// index. Durable files are not touched regardless of criteria.
func (m *Manager) ClearSubsystemLogs(ctx context.Context, name string, criteria domain.ClearCriteria) (int, error) {
	ix := m.index(name)
	if ix == nil {
		return 0, domain.ErrNotFound
	}

	removed := ix.Clear(&criteria)
	if m.metrics != nil {
		m.metrics.IndexedEntries.Sub(float64(removed))
	}
	m.recordAudit(ctx, "subsystem_logs_cleared", map[string]any{
		"subsystem": name,
		"removed":   removed,
		"force":     criteria.Force,
	})
	return removed, nil
}

// MasterReset applies a forced clear to every registered subsystem's index.
func (m *Manager) MasterReset(ctx context.Context) (int, error) {
	m.mu.RLock()
	indexes := make(map[string]*Index, len(m.indexes))
	for name, ix := range m.indexes {
		indexes[name] = ix
	}
	m.mu.RUnlock()

	removed := 0
	for _, ix := range indexes {
		removed += ix.Clear(&domain.ClearCriteria{Force: true})
	}
	if m.metrics != nil {
		m.metrics.IndexedEntries.Sub(float64(removed))
	}
	m.recordAudit(ctx, "master_reset", map[string]any{
		"subsystems": len(indexes),
		"removed":    removed,
	})
	return removed, nil
}

// GetStats aggregates snapshot statistics across subsystems.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	loggers := make(map[string]*sublogger.Logger, len(m.loggers))
	for name, lg := range m.loggers {
		loggers[name] = lg
	}
	indexes := make([]*Index, 0, len(m.indexes))
	for _, ix := range m.indexes {
		indexes = append(indexes, ix)
	}
	m.mu.RUnlock()

	stats := Stats{Subsystems: make(map[string]sublogger.Stats, len(loggers))}
	for name, lg := range loggers {
		s := lg.Stats()
		stats.Subsystems[name] = s
		stats.TotalRequests += s.TotalRequests
		stats.TotalErrors += s.TotalErrors
	}
	for _, ix := range indexes {
		stats.IndexedEntries += ix.Size()
	}
	stats.KeyCount = m.KeyCount()
	return stats
}

// SubscribeEntries registers a listener for entry events. Listeners must not
// block: they run on the logging path.
func (m *Manager) SubscribeEntries(fn func(domain.EntryEvent)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// OnEntry implements domain.EventSink: index the entry and, when real-time
// streaming is enabled for the subsystem, fan it out to the stream listeners.
func (m *Manager) OnEntry(ev domain.EntryEvent) {
	m.mu.RLock()
	ix := m.indexes[ev.Subsystem]
	streaming := m.streaming[ev.Subsystem]
	m.mu.RUnlock()

	if ix != nil {
		ix.Add(ev.Entry)
		if m.metrics != nil {
			m.metrics.IndexedEntries.Inc()
		}
	}
	if !streaming {
		return
	}

	m.subMu.RLock()
	subs := m.subscribers
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// OnError implements domain.EventSink.
func (m *Manager) OnError(ev domain.ErrorEvent) {
	m.log.Error("subsystem maintenance error", "subsystem", ev.Subsystem, "op", ev.Op, "error", ev.Err)
}

// OnLifecycle implements domain.EventSink.
func (m *Manager) OnLifecycle(ev domain.LifecycleEvent) {
	m.log.Debug("subsystem lifecycle", "subsystem", ev.Subsystem, "kind", string(ev.Kind))
}

// Shutdown closes every registered subsystem logger, the audit logger last.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	loggers := m.loggers
	m.loggers = make(map[string]*sublogger.Logger)
	m.mu.Unlock()

	var firstErr error
	for name, lg := range loggers {
		if name == AuditSubsystem {
			continue
		}
		if err := lg.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if audit, ok := loggers[AuditSubsystem]; ok {
		if err := audit.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.log.Info("manager shut down", "subsystems", len(loggers))
	return firstErr
}
