package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/edgestack/logcenter/internal/domain"
)

// AuditSubsystem is the reserved subsystem name recording management
// operations (registration, key changes, resets).
const AuditSubsystem = "audit"

// recordAudit appends one audit record to the audit subsystem's logger and,
// when configured, mirrors it to the external audit sink. Audit failures are
// logged but never fail the operation that produced them.
func (m *Manager) recordAudit(ctx context.Context, action string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		m.log.Warn("failed to marshal audit details", "action", action, "error", err)
		payload = nil
	}

	if m.audit != nil {
		_, err := m.audit.LogRequest(domain.RequestData{
			Method:        "AUDIT",
			Path:          action,
			StatusCode:    200,
			SubsystemData: payload,
		})
		if err != nil {
			m.log.Warn("failed to append audit record", "action", action, "error", err)
		}
	}

	if m.auditSink != nil {
		rec := domain.AuditRecord{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Action:    action,
			Details:   payload,
		}
		go func() {
			sinkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.auditSink.WriteAuditBatch(sinkCtx, []domain.AuditRecord{rec}); err != nil {
				m.log.Warn("failed to mirror audit record to sink", "action", action, "error", err)
			}
		}()
	}
}
