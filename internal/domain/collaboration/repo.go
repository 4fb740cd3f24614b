package collaboration

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrShareNotFound        = errors.New("share not found")
	ErrCommentNotFound      = errors.New("comment not found")
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrForbidden            = errors.New("access denied")
	ErrInvalid              = errors.New("invalid request")
)

type ShareRepository interface {
	// Upsert creates the share or replaces the permission of the existing
	// one for the same consultation and user. created reports which.
	Upsert(ctx context.Context, s *Share) (created bool, err error)
	Get(ctx context.Context, consultationID uuid.UUID, userID string) (*Share, error)
	Delete(ctx context.Context, consultationID uuid.UUID, userID string) error
	ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*Share, error)
	ListSharedWith(ctx context.Context, userID string, limit, offset int) ([]*Share, int, error)
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByConsultation returns comments oldest first.
	ListByConsultation(ctx context.Context, consultationID uuid.UUID, limit, offset int) ([]*Comment, int, error)
}

// AuditLog reads the audit trail written by the request audit middleware.
type AuditLog interface {
	List(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditEvent, int, error)
}
