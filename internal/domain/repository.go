package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditRecord captures one management operation for the audit trail.
type AuditRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// KeyPersistence is the optional adapter that makes the API key store survive
// restarts. Failures are logged by the caller and never fatal: the in-memory
// store remains the source of truth for the running process.
type KeyPersistence interface {
	// LoadAll returns every persisted key.
	LoadAll(ctx context.Context) ([]APIKey, error)

	// Save upserts one key.
	Save(ctx context.Context, key APIKey) error

	// Delete removes one key by its full value.
	Delete(ctx context.Context, key string) error
}

// AuditSink is the optional adapter mirroring audit records to durable
// external storage in addition to the audit subsystem's log files.
type AuditSink interface {
	// WriteAuditBatch writes a batch of audit records.
	WriteAuditBatch(ctx context.Context, records []AuditRecord) error
}
