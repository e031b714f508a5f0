package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
	"github.com/edgestack/logcenter/internal/domain/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		LogRoot:          t.TempDir(),
		BufferSize:       100,
		FlushInterval:    time.Hour,
		RetentionDays:    30,
		Compress:         true,
		Streaming:        true,
		IndexSize:        1000,
		MaxSearchResults: 1000,
	}
}

func newTestManager(t *testing.T, cfg Config, opts Options) *Manager {
	t.Helper()
	mgr, err := New(context.Background(), cfg, discardLogger(), nil, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return mgr
}

func mustRegister(t *testing.T, mgr *Manager, name string, sc *SubsystemConfig) {
	t.Helper()
	if _, err := mgr.RegisterSubsystem(context.Background(), name, sc); err != nil {
		t.Fatalf("RegisterSubsystem(%q) error = %v", name, err)
	}
}

func mustLog(t *testing.T, mgr *Manager, subsystem string, data domain.RequestData) string {
	t.Helper()
	lg, ok := mgr.GetSubsystem(subsystem)
	if !ok {
		t.Fatalf("subsystem %q not registered", subsystem)
	}
	id, err := lg.LogRequest(data)
	if err != nil {
		t.Fatalf("LogRequest() error = %v", err)
	}
	return id
}

func TestRegisterAndListSubsystems(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})

	mustRegister(t, mgr, "web", nil)
	mustRegister(t, mgr, "api", nil)

	names := mgr.ListSubsystems()
	want := []string{AuditSubsystem, "api", "web"}
	if len(names) != len(want) {
		t.Fatalf("ListSubsystems() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListSubsystems()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegisterSubsystemRejectsBadNames(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})

	for _, name := range []string{"", "a/b", `a\b`} {
		_, err := mgr.RegisterSubsystem(context.Background(), name, nil)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("RegisterSubsystem(%q) error = %v, want ValidationError", name, err)
		}
	}
}

func TestReRegisterReplacesLogger(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})

	mustRegister(t, mgr, "api", nil)
	first, _ := mgr.GetSubsystem("api")

	mustRegister(t, mgr, "api", &SubsystemConfig{BufferSize: 10})
	second, _ := mgr.GetSubsystem("api")

	if first == second {
		t.Error("re-registration did not replace the logger")
	}
	if _, ok := mgr.GetSubsystem("api"); !ok {
		t.Error("subsystem missing after re-registration")
	}
}

func TestSubsystemStatsUnknown(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})
	if _, err := mgr.SubsystemStats("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SubsystemStats(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestClearSubsystemLogsLeavesFilesIntact(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})
	mustRegister(t, mgr, "api", nil)
	mustLog(t, mgr, "api", domain.RequestData{Method: "GET", Path: "/a", StatusCode: 200})

	lg, _ := mgr.GetSubsystem("api")
	if err := lg.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	removed, err := mgr.ClearSubsystemLogs(context.Background(), "api", domain.ClearCriteria{Force: true})
	if err != nil {
		t.Fatalf("ClearSubsystemLogs() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if size := mgr.index("api").Size(); size != 0 {
		t.Errorf("index size = %d, want 0 after clear", size)
	}

	// Durable files survive a clear.
	date := time.Now().Format("2006-01-02")
	if _, err := os.Stat(filepath.Join(lg.Dir(), "combined-"+date+".log")); err != nil {
		t.Errorf("combined file should survive clear: %v", err)
	}
}

func TestClearSubsystemLogsByCriteria(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})
	mustRegister(t, mgr, "api", nil)
	mustLog(t, mgr, "api", domain.RequestData{Method: "GET", Path: "/ok", StatusCode: 200})
	mustLog(t, mgr, "api", domain.RequestData{Method: "GET", Path: "/bad", StatusCode: 500})

	removed, err := mgr.ClearSubsystemLogs(context.Background(), "api", domain.ClearCriteria{StatusCodes: []int{500}})
	if err != nil {
		t.Fatalf("ClearSubsystemLogs() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if size := mgr.index("api").Size(); size != 1 {
		t.Errorf("index size = %d, want 1", size)
	}
}

func TestClearSubsystemLogsUnknown(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})
	if _, err := mgr.ClearSubsystemLogs(context.Background(), "ghost", domain.ClearCriteria{Force: true}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMasterResetClearsEveryIndex(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})
	mustRegister(t, mgr, "api", nil)
	mustRegister(t, mgr, "web", nil)
	mustLog(t, mgr, "api", domain.RequestData{Method: "GET", StatusCode: 200})
	mustLog(t, mgr, "web", domain.RequestData{Method: "GET", StatusCode: 200})

	removed, err := mgr.MasterReset(context.Background())
	if err != nil {
		t.Fatalf("MasterReset() error = %v", err)
	}
	if removed < 2 {
		t.Errorf("removed = %d, want at least the 2 logged entries", removed)
	}
	if size := mgr.index("api").Size(); size != 0 {
		t.Errorf("api index size = %d, want 0", size)
	}
	if size := mgr.index("web").Size(); size != 0 {
		t.Errorf("web index size = %d, want 0", size)
	}
}

func TestGetStatsAggregates(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})
	mustRegister(t, mgr, "api", nil)
	mustRegister(t, mgr, "web", nil)
	mustLog(t, mgr, "api", domain.RequestData{Method: "GET", StatusCode: 200})
	mustLog(t, mgr, "api", domain.RequestData{Method: "GET", StatusCode: 500})
	mustLog(t, mgr, "web", domain.RequestData{Method: "GET", StatusCode: 200})

	stats := mgr.GetStats()
	if got := stats.Subsystems["api"].TotalRequests; got != 2 {
		t.Errorf("api TotalRequests = %d, want 2", got)
	}
	if got := stats.Subsystems["api"].TotalErrors; got != 1 {
		t.Errorf("api TotalErrors = %d, want 1", got)
	}
	if got := stats.Subsystems["web"].TotalRequests; got != 1 {
		t.Errorf("web TotalRequests = %d, want 1", got)
	}
	if stats.KeyCount != 1 {
		t.Errorf("KeyCount = %d, want 1 (default admin key)", stats.KeyCount)
	}

	// Totals roll up every subsystem, the internal audit trail included.
	var sumReq, sumErr int64
	for _, s := range stats.Subsystems {
		sumReq += s.TotalRequests
		sumErr += s.TotalErrors
	}
	if stats.TotalRequests != sumReq {
		t.Errorf("TotalRequests = %d, want sum %d", stats.TotalRequests, sumReq)
	}
	if stats.TotalErrors != sumErr {
		t.Errorf("TotalErrors = %d, want sum %d", stats.TotalErrors, sumErr)
	}
}

func TestOnEntryFanOutRespectsStreamingToggle(t *testing.T) {
	mgr := newTestManager(t, testConfig(t), Options{})

	off := false
	mustRegister(t, mgr, "quiet", &SubsystemConfig{Streaming: &off})
	mustRegister(t, mgr, "loud", nil)

	var events []domain.EntryEvent
	mgr.SubscribeEntries(func(ev domain.EntryEvent) { events = append(events, ev) })

	mustLog(t, mgr, "quiet", domain.RequestData{Method: "GET", StatusCode: 200})
	mustLog(t, mgr, "loud", domain.RequestData{Method: "GET", StatusCode: 200})

	if len(events) != 1 || events[0].Subsystem != "loud" {
		t.Fatalf("fan-out events = %+v, want one event from loud only", events)
	}

	// Indexing happens regardless of the streaming toggle.
	if size := mgr.index("quiet").Size(); size != 1 {
		t.Errorf("quiet index size = %d, want 1", size)
	}
}

func TestShutdownClosesSubsystemLoggers(t *testing.T) {
	cfg := testConfig(t)
	mgr, err := New(context.Background(), cfg, discardLogger(), nil, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := mgr.RegisterSubsystem(context.Background(), "api", nil); err != nil {
		t.Fatalf("RegisterSubsystem() error = %v", err)
	}
	lg, _ := mgr.GetSubsystem("api")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if _, err := lg.LogRequest(domain.RequestData{Method: "GET", StatusCode: 200}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("LogRequest() after shutdown error = %v, want ErrClosed", err)
	}
}

func TestAuditTrailRecordsManagementOperations(t *testing.T) {
	sink := &mocks.MockAuditSink{}
	mgr := newTestManager(t, testConfig(t), Options{AuditSink: sink})
	mustRegister(t, mgr, "api", nil)

	// Registration is mirrored to the external sink asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for sink.RecordCount() < 2 { // audit subsystem registration + api registration
		if time.Now().After(deadline) {
			t.Fatalf("audit sink received %d records, want at least 2", sink.RecordCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The audit subsystem itself indexes the records.
	audit := mgr.index(AuditSubsystem)
	if audit == nil || audit.Size() == 0 {
		t.Error("audit subsystem index is empty")
	}
}
