package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

// DiagnosisLink exposes consultations to the diagnosis service.
type DiagnosisLink struct {
	repo Repository
}

func NewDiagnosisLink(repo Repository) *DiagnosisLink {
	return &DiagnosisLink{repo: repo}
}

func (l *DiagnosisLink) ConsultationContext(ctx context.Context, id uuid.UUID) (*diagnosis.ConsultationContext, error) {
	c, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &diagnosis.ConsultationContext{
		PatientID:  c.PatientID,
		Symptoms:   append([]string(nil), c.Symptoms...),
		VitalSigns: c.VitalSigns,
	}, nil
}

func (l *DiagnosisLink) AttachDiagnosis(ctx context.Context, id uuid.UUID, report *diagnosis.Report) error {
	return mapNotFound(l.repo.AttachAIDiagnosis(ctx, id, report))
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return diagnosis.ErrNotFound
	}
	return err
}
