package middleware

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type auditRecorderPG struct{ pool *pgxpool.Pool }

// NewAuditRecorderPG stores audit entries in the audit_event table.
func NewAuditRecorderPG(pool *pgxpool.Pool) AuditRecorder {
	return &auditRecorderPG{pool: pool}
}

func (r *auditRecorderPG) RecordAccess(ctx context.Context, e AuditEntry) error {
	// The request may already be cancelled once the response is written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_event (user_id, user_roles, resource, resource_id, patient_id,
			action, method, path, ip_address, user_agent, status_code, request_id, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.UserID, e.UserRoles, e.Resource, nullIfEmpty(e.ResourceID), nullIfEmpty(e.PatientID),
		e.Action, e.Method, e.Path, e.IPAddress, e.UserAgent, e.StatusCode, e.RequestID, e.Timestamp)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
