package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

// PatientLookup resolves a patient, returning an error matching
// diagnosis.ErrNotFound when it does not exist.
type PatientLookup interface {
	PatientName(ctx context.Context, patientID uuid.UUID) (string, error)
}

type Service struct {
	repo     Repository
	patients PatientLookup
}

func NewService(repo Repository, patients PatientLookup) *Service {
	return &Service{repo: repo, patients: patients}
}

// Update replaces the clinical fields of a consultation. Nil fields are left
// untouched.
type Update struct {
	ChiefComplaint *string               `json:"chief_complaint"`
	Symptoms       *[]string             `json:"symptoms"`
	VitalSigns     *diagnosis.VitalSigns `json:"vital_signs"`
	Diagnosis      *string               `json:"diagnosis"`
	TreatmentPlan  *string               `json:"treatment_plan"`
	Notes          *string               `json:"notes"`
}

func (u *Update) apply(c *Consultation) {
	if u.ChiefComplaint != nil {
		c.ChiefComplaint = *u.ChiefComplaint
	}
	if u.Symptoms != nil {
		c.Symptoms = *u.Symptoms
	}
	if u.VitalSigns != nil {
		c.VitalSigns = *u.VitalSigns
	}
	if u.Diagnosis != nil {
		c.Diagnosis = u.Diagnosis
	}
	if u.TreatmentPlan != nil {
		c.TreatmentPlan = u.TreatmentPlan
	}
	if u.Notes != nil {
		c.Notes = u.Notes
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func normalize(c *Consultation) error {
	c.ChiefComplaint = strings.TrimSpace(c.ChiefComplaint)
	if c.ChiefComplaint == "" {
		return invalid("chief_complaint is required")
	}
	symptoms := make([]string, 0, len(c.Symptoms))
	for _, s := range c.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	c.Symptoms = symptoms
	return nil
}

func (s *Service) checkPatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.patients.PatientName(ctx, id); err != nil {
		if errors.Is(err, diagnosis.ErrNotFound) {
			return ErrPatientNotFound
		}
		return err
	}
	return nil
}

func (s *Service) Create(ctx context.Context, c *Consultation) error {
	if c.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	if err := normalize(c); err != nil {
		return err
	}
	if err := s.checkPatient(ctx, c.PatientID); err != nil {
		return err
	}
	if c.ConsultationDate.IsZero() {
		c.ConsultationDate = time.Now().UTC()
	}
	c.AIDiagnosis = nil
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, u *Update) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.apply(c)
	if err := normalize(c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
