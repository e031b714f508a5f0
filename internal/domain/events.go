package domain

import "time"

// EntryEvent is emitted for every entry logged to a streaming-enabled
// subsystem.
type EntryEvent struct {
	Subsystem string
	Entry     *LogEntry
}

// ErrorEvent reports a background-maintenance failure (flush, rotation,
// retention, compression). The failed cycle is retried on its next schedule.
type ErrorEvent struct {
	Subsystem string
	Op        string
	Err       error
	At        time.Time
}

// LifecycleKind enumerates lifecycle transitions of a subsystem logger.
type LifecycleKind string

const (
	LifecycleStarted  LifecycleKind = "started"
	LifecycleRotated  LifecycleKind = "rotated"
	LifecycleShutdown LifecycleKind = "shutdown"
)

// LifecycleEvent is emitted on logger start, rotation, and shutdown.
type LifecycleEvent struct {
	Subsystem string
	Kind      LifecycleKind
	At        time.Time
}

// EventSink receives typed events from a SubsystemLogger. Implementations must
// not block: handlers run on the logging and timer paths.
type EventSink interface {
	OnEntry(EntryEvent)
	OnError(ErrorEvent)
	OnLifecycle(LifecycleEvent)
}
