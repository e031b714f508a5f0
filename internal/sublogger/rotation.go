package sublogger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/edgestack/logcenter/internal/domain"
)

// run is the maintenance loop: periodic flush, coarse rotation checks and the
// daily retention sweep. I/O failures are reported as events and the cycle is
// retried on its next schedule.
func (l *Logger) run() {
	defer close(l.done)

	flushTicker := time.NewTicker(l.cfg.FlushInterval)
	defer flushTicker.Stop()
	rotateTicker := time.NewTicker(rotateCheckInterval)
	defer rotateTicker.Stop()

	// First retention sweep at the next local midnight, then every 24h.
	retention := time.NewTimer(time.Until(nextMidnight(time.Now())))
	defer retention.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-flushTicker.C:
			if err := l.Flush(); err != nil {
				l.log.Warn("periodic flush failed", "error", err)
			}
		case <-rotateTicker.C:
			l.checkRotate()
		case <-retention.C:
			l.retentionSweep()
			retention.Reset(24 * time.Hour)
		}
	}
}

// checkRotate compares the wall-clock date with the logger's recorded date and
// performs the flush-then-reopen transition on change.
func (l *Logger) checkRotate() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	today := time.Now().Format(dateLayout)
	if today == l.date {
		l.mu.Unlock()
		return
	}

	// Final flush into the old day's files, then advance.
	if err := l.flushLocked(); err != nil {
		l.reportError("rotate", err)
	}
	l.closeFilesLocked()
	l.date = today
	l.mu.Unlock()

	l.log.Info("rotated to new log date", "date", today)
	if l.m != nil {
		l.m.RotationsTotal.Inc()
	}
	l.emitLifecycle(domain.LifecycleRotated)
}

// retentionSweep compresses or removes files older than the retention horizon.
func (l *Logger) retentionSweep() {
	horizon := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)

	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		l.reportError("retention", fmt.Errorf("failed to read log directory: %w", err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(horizon) {
			continue
		}

		path := filepath.Join(l.cfg.Dir, entry.Name())
		if strings.HasSuffix(entry.Name(), ".gz") || !l.cfg.Compress {
			if err := os.Remove(path); err != nil {
				l.reportError("retention", fmt.Errorf("failed to remove %s: %w", path, err))
			}
			continue
		}

		// Compress then remove the original. These are two separate steps: a
		// crash between them leaves both forms present.
		if err := l.compressFile(path); err != nil {
			l.reportError("compression", err)
			continue
		}
		if err := os.Remove(path); err != nil {
			l.reportError("compression", fmt.Errorf("failed to remove original %s: %w", path, err))
		}
	}
}

func (l *Logger) compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for compression: %w", path, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s.gz: %w", path, err)
	}

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		dst.Close()
		return fmt.Errorf("failed to compress %s: %w", path, err)
	}
	if err := gw.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("failed to finalize %s.gz: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close %s.gz: %w", path, err)
	}

	if l.m != nil {
		l.m.CompressedFiles.Inc()
	}
	l.log.Info("compressed old log file", "path", path)
	return nil
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
