package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

var (
	ErrNotFound        = errors.New("consultation not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrInvalid         = errors.New("invalid consultation")
)

type Repository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
	AttachAIDiagnosis(ctx context.Context, id uuid.UUID, report *diagnosis.Report) error
}
