package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

// Directory exposes patients to the diagnosis service.
type Directory struct {
	svc *Service
}

func NewDirectory(svc *Service) *Directory {
	return &Directory{svc: svc}
}

var _ diagnosis.PatientDirectory = (*Directory)(nil)

func (d *Directory) PatientName(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := d.svc.GetPatient(ctx, id)
	if err != nil {
		return "", notFound(err, id)
	}
	return p.FullName(), nil
}

// ConditionRecords returns the patient's history in the shape the
// aggregator consumes.
func (d *Directory) ConditionRecords(ctx context.Context, id uuid.UUID) ([]diagnosis.ConditionRecord, error) {
	items, err := d.svc.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]diagnosis.ConditionRecord, 0, len(items))
	for _, h := range items {
		out = append(out, diagnosis.ConditionRecord{
			Condition: h.Condition,
			Status:    diagnosis.ConditionStatus(h.Status),
		})
	}
	return out, nil
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("patient %s: %w", id, diagnosis.ErrNotFound)
	}
	return err
}
