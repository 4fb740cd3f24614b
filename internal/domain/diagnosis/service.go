package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request asks for a diagnosis of one patient. Symptoms and vital signs fall
// back to those recorded on the consultation when omitted.
type Request struct {
	Symptoms       []string    `json:"symptoms"`
	VitalSigns     *VitalSigns `json:"vital_signs"`
	ImageIDs       []uuid.UUID `json:"image_ids"`
	ConsultationID *uuid.UUID  `json:"consultation_id"`
}

type Service struct {
	agg           *Aggregator
	records       Repository
	patients      PatientDirectory
	images        ImageSource
	consultations ConsultationStore
	provider      ImageFindingProvider
	notifier      Notifier
	renderer      Renderer
	concurrency   int
	logger        zerolog.Logger
}

func NewService(agg *Aggregator, records Repository, patients PatientDirectory, images ImageSource,
	consultations ConsultationStore, provider ImageFindingProvider, notifier Notifier, renderer Renderer,
	concurrency int, logger zerolog.Logger) *Service {
	if agg == nil {
		agg = NewAggregator(DefaultOptions())
	}
	return &Service{
		agg:           agg,
		records:       records,
		patients:      patients,
		images:        images,
		consultations: consultations,
		provider:      provider,
		notifier:      notifier,
		renderer:      renderer,
		concurrency:   concurrency,
		logger:        logger.With().Str("component", "diagnosis").Logger(),
	}
}

// Evaluate aggregates fully supplied inputs without touching storage.
func (s *Service) Evaluate(in Input) *Report {
	return s.agg.Diagnose(in)
}

// Diagnose builds, stores and returns a report for a patient.
func (s *Service) Diagnose(ctx context.Context, patientID uuid.UUID, req Request, requestedBy string) (*Record, error) {
	patientName, err := s.patients.PatientName(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	in := Input{Symptoms: req.Symptoms}
	if req.VitalSigns != nil {
		in.VitalSigns = *req.VitalSigns
	}
	if req.ConsultationID != nil {
		if s.consultations == nil {
			return nil, fmt.Errorf("%w: consultations unavailable", ErrInvalidInput)
		}
		cc, err := s.consultations.ConsultationContext(ctx, *req.ConsultationID)
		if err != nil {
			return nil, fmt.Errorf("load consultation: %w", err)
		}
		if cc.PatientID != patientID {
			return nil, fmt.Errorf("%w: consultation belongs to another patient", ErrInvalidInput)
		}
		if len(in.Symptoms) == 0 {
			in.Symptoms = cc.Symptoms
		}
		if req.VitalSigns == nil {
			in.VitalSigns = cc.VitalSigns
		}
	}

	if in.History, err = s.patients.ConditionRecords(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load medical history: %w", err)
	}

	imageIDs := dedupeIDs(req.ImageIDs)
	if len(imageIDs) > 0 {
		if s.images == nil {
			return nil, fmt.Errorf("%w: images unavailable", ErrInvalidInput)
		}
		refs, err := s.images.ImageRefs(ctx, patientID, imageIDs)
		if err != nil {
			return nil, fmt.Errorf("load images: %w", err)
		}
		if in.Images, err = ResolveFindings(ctx, s.provider, refs, s.concurrency, s.logger); err != nil {
			return nil, err
		}
	}

	report := s.agg.Diagnose(in)
	rec := &Record{
		PatientID:      patientID,
		ConsultationID: req.ConsultationID,
		ImageIDs:       imageIDs,
		RequestedBy:    requestedBy,
		Report:         report,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store diagnosis: %w", err)
	}

	if req.ConsultationID != nil {
		if err := s.consultations.AttachDiagnosis(ctx, *req.ConsultationID, report); err != nil {
			s.logger.Error().Err(err).Str("consultation_id", req.ConsultationID.String()).
				Msg("failed to attach diagnosis to consultation")
		}
	}

	s.logger.Info().
		Str("diagnosis_id", rec.ID.String()).
		Str("patient_id", patientID.String()).
		Str("urgency", report.UrgencyLevel.String()).
		Int("differential", len(report.DifferentialDiagnoses)).
		Float64("confidence", report.ConfidenceScore).
		Int("images", len(in.Images)).
		Msg("diagnosis generated")

	if report.UrgencyLevel == UrgencyUrgent && s.notifier != nil && requestedBy != "" {
		if err := s.notifier.NotifyUrgent(ctx, requestedBy, patientName, rec); err != nil {
			s.logger.Warn().Err(err).Str("diagnosis_id", rec.ID.String()).Msg("urgent diagnosis notification failed")
		}
	}
	return rec, nil
}

func (s *Service) GetDiagnosis(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

// WritePDF renders a stored report.
func (s *Service) WritePDF(ctx context.Context, w io.Writer, id uuid.UUID) error {
	if s.renderer == nil {
		return ErrNoRenderer
	}
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	name, err := s.patients.PatientName(ctx, rec.PatientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load patient: %w", err)
	}
	return s.renderer.Render(w, name, rec)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
