package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("patient id already exists")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List matches search against first name, last name and patient id.
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
}

type HistoryRepository interface {
	Create(ctx context.Context, h *MedicalHistory) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalHistory, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicalHistory, error)
	Update(ctx context.Context, h *MedicalHistory) error
	Delete(ctx context.Context, id uuid.UUID) error
}
