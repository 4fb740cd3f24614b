package diagnosis

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoRenderer   = errors.New("pdf rendering is not configured")
)

// Repository persists generated reports.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)
}

// PatientDirectory resolves the patient a diagnosis is for. Unknown patients
// yield an error matching ErrNotFound.
type PatientDirectory interface {
	PatientName(ctx context.Context, patientID uuid.UUID) (string, error)
	ConditionRecords(ctx context.Context, patientID uuid.UUID) ([]ConditionRecord, error)
}

// ImageSource turns image ids of a patient into references, attaching the
// latest completed analysis when there is one.
type ImageSource interface {
	ImageRefs(ctx context.Context, patientID uuid.UUID, imageIDs []uuid.UUID) ([]ImageRef, error)
}

// ConsultationContext is the clinical data of a consultation.
type ConsultationContext struct {
	PatientID  uuid.UUID
	Symptoms   []string
	VitalSigns VitalSigns
}

type ConsultationStore interface {
	ConsultationContext(ctx context.Context, id uuid.UUID) (*ConsultationContext, error)
	AttachDiagnosis(ctx context.Context, id uuid.UUID, report *Report) error
}

type Notifier interface {
	NotifyUrgent(ctx context.Context, userID, patientName string, rec *Record) error
}

// Renderer writes a printable version of a stored report.
type Renderer interface {
	Render(w io.Writer, patientName string, rec *Record) error
}
