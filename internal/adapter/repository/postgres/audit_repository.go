package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/edgestack/logcenter/internal/domain"
)

// AuditRepository mirrors audit records into PostgreSQL. It implements
// domain.AuditSink; the file-based audit trail remains the primary record.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates the repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger.With("component", "postgres_audit_repository"),
	}
}

// WriteAuditBatch writes a batch of audit records using the COPY protocol.
func (r *AuditRepository) WriteAuditBatch(ctx context.Context, records []domain.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	stmt, err := txn.Prepare(pq.CopyIn("audit_records", "id", "recorded_at", "action", "actor", "details"))
	if err != nil {
		return fmt.Errorf("failed to prepare audit copy: %w", err)
	}

	for _, rec := range records {
		var details any
		if len(rec.Details) > 0 {
			details = string(rec.Details)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Timestamp, rec.Action, rec.Actor, details); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to stage audit record %s: %w", rec.ID, err)
		}
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to flush audit copy: %w", err)
	}

	return txn.Commit()
}
