package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid patient data")

var validGenders = map[string]bool{
	"male": true, "female": true, "other": true, "unknown": true,
}

var validHistoryStatuses = map[string]bool{
	"active": true, "resolved": true, "chronic": true,
}

type Service struct {
	patients PatientRepository
	history  HistoryRepository
}

func NewService(patients PatientRepository, history HistoryRepository) *Service {
	return &Service{patients: patients, history: history}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return invalid("first_name is required")
	}
	if p.LastName == "" {
		return invalid("last_name is required")
	}
	if p.Gender != nil && *p.Gender != "" && !validGenders[*p.Gender] {
		return invalid("invalid gender: %s", *p.Gender)
	}
	return nil
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	p.PatientNumber = strings.TrimSpace(p.PatientNumber)
	if p.PatientNumber == "" {
		p.PatientNumber = "PAT-" + strings.ToUpper(uuid.NewString()[:8])
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// UpdatePatient applies a partial update and returns the stored patient.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, u *Update) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.apply(p)
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, strings.TrimSpace(search), limit, offset)
}

// -- Medical History --

func (s *Service) AddHistory(ctx context.Context, h *MedicalHistory) error {
	if h.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	if err := validateHistory(h); err != nil {
		return err
	}
	if _, err := s.patients.GetByID(ctx, h.PatientID); err != nil {
		return err
	}
	return s.history.Create(ctx, h)
}

func validateHistory(h *MedicalHistory) error {
	h.Condition = strings.TrimSpace(h.Condition)
	if h.Condition == "" {
		return invalid("condition is required")
	}
	if h.Status == "" {
		h.Status = "active"
	}
	if !validHistoryStatuses[h.Status] {
		return invalid("invalid status: %s", h.Status)
	}
	return nil
}

func (s *Service) ListHistory(ctx context.Context, patientID uuid.UUID) ([]*MedicalHistory, error) {
	return s.history.ListByPatient(ctx, patientID)
}

func (s *Service) UpdateHistory(ctx context.Context, h *MedicalHistory) error {
	existing, err := s.history.GetByID(ctx, h.ID)
	if err != nil {
		return err
	}
	h.PatientID = existing.PatientID
	h.CreatedAt = existing.CreatedAt
	if err := validateHistory(h); err != nil {
		return err
	}
	return s.history.Update(ctx, h)
}

func (s *Service) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	return s.history.Delete(ctx, id)
}
