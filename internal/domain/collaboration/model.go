package collaboration

import (
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/platform/middleware"
)

// Permission is the access a share grants. Write also allows managing
// shares.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// Share grants one user access to a consultation owned by another.
type Share struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConsultationID uuid.UUID  `db:"consultation_id" json:"consultation_id"`
	SharedBy       string     `db:"shared_by" json:"shared_by"`
	SharedWith     string     `db:"shared_with" json:"shared_with"`
	Permission     Permission `db:"permission" json:"permission"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type Comment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	AuthorID       string    `db:"author_id" json:"author_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AuditEvent is one persisted row of the request audit trail.
type AuditEvent struct {
	ID int64 `json:"id"`
	middleware.AuditEntry
}

// AuditFilter narrows an audit listing. Empty fields match everything.
type AuditFilter struct {
	UserID     string
	Resource   string
	ResourceID string
	PatientID  string
}
