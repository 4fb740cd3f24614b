package consultation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

// ── Mock Repositories ──

type mockRepo struct {
	store map[uuid.UUID]*Consultation
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Consultation)}
}

func (m *mockRepo) Create(_ context.Context, c *Consultation) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, c *Consultation) error {
	if _, ok := m.store[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, c := range m.store {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsultationDate.After(out[j].ConsultationDate) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) AttachAIDiagnosis(_ context.Context, id uuid.UUID, report *diagnosis.Report) error {
	c, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	c.AIDiagnosis = report
	return nil
}

type mockPatients struct {
	known map[uuid.UUID]string
	err   error
}

func (m *mockPatients) PatientName(_ context.Context, id uuid.UUID) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	name, ok := m.known[id]
	if !ok {
		return "", diagnosis.ErrNotFound
	}
	return name, nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	patients *mockPatients
	patient  uuid.UUID
}

func newFixture() *fixture {
	patient := uuid.New()
	f := &fixture{
		repo:     newMockRepo(),
		patients: &mockPatients{known: map[uuid.UUID]string{patient: "Awa Diallo"}},
		patient:  patient,
	}
	f.svc = NewService(f.repo, f.patients)
	return f
}

func (f *fixture) mustCreate(t *testing.T, complaint string, at time.Time) *Consultation {
	t.Helper()
	c := &Consultation{PatientID: f.patient, ChiefComplaint: complaint, ConsultationDate: at}
	if err := f.svc.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func ptrF(v float64) *float64  { return &v }
func strPtr(s string) *string { return &s }

// ── Service Tests ──

func TestService_Create(t *testing.T) {
	f := newFixture()
	c := &Consultation{
		PatientID:      f.patient,
		ChiefComplaint: "  Fièvre depuis 3 jours ",
		Symptoms:       []string{"fièvre", " ", " toux "},
		VitalSigns:     diagnosis.VitalSigns{Temperature: ptrF(39.2)},
		AIDiagnosis:    &diagnosis.Report{},
	}
	if err := f.svc.Create(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if c.ChiefComplaint != "Fièvre depuis 3 jours" {
		t.Errorf("expected trimmed complaint, got %q", c.ChiefComplaint)
	}
	if len(c.Symptoms) != 2 || c.Symptoms[1] != "toux" {
		t.Errorf("expected cleaned symptoms, got %v", c.Symptoms)
	}
	if c.ConsultationDate.IsZero() {
		t.Error("expected consultation date to default to now")
	}
	if c.AIDiagnosis != nil {
		t.Error("expected client-supplied ai diagnosis to be dropped")
	}
}

func TestService_Create_Errors(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		c    *Consultation
		want error
	}{
		{"missing patient", &Consultation{ChiefComplaint: "Toux"}, ErrInvalid},
		{"missing complaint", &Consultation{PatientID: f.patient, ChiefComplaint: "  "}, ErrInvalid},
		{"unknown patient", &Consultation{PatientID: uuid.New(), ChiefComplaint: "Toux"}, ErrPatientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.Create(context.Background(), tt.c); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_Create_LookupFailure(t *testing.T) {
	f := newFixture()
	f.patients.err = errors.New("connection refused")
	err := f.svc.Create(context.Background(), &Consultation{PatientID: f.patient, ChiefComplaint: "Toux"})
	if err == nil || errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected lookup error to pass through, got %v", err)
	}
}

func TestService_Update(t *testing.T) {
	f := newFixture()
	c := f.mustCreate(t, "Toux", time.Time{})

	updated, err := f.svc.Update(context.Background(), c.ID, &Update{
		Symptoms:      &[]string{"toux", "dyspnée"},
		TreatmentPlan: strPtr("Repos"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ChiefComplaint != "Toux" || len(updated.Symptoms) != 2 || *updated.TreatmentPlan != "Repos" {
		t.Errorf("unexpected consultation %+v", updated)
	}

	if _, err := f.svc.Update(context.Background(), c.ID, &Update{ChiefComplaint: strPtr("")}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := f.svc.Update(context.Background(), uuid.New(), &Update{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListByPatient_NewestFirst(t *testing.T) {
	f := newFixture()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.mustCreate(t, "Première visite", base)
	f.mustCreate(t, "Contrôle", base.Add(48*time.Hour))

	items, total, err := f.svc.ListByPatient(context.Background(), f.patient, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || items[0].ChiefComplaint != "Contrôle" {
		t.Errorf("expected newest first, got %+v", items)
	}
}

func TestService_Delete(t *testing.T) {
	f := newFixture()
	c := f.mustCreate(t, "Toux", time.Time{})
	if err := f.svc.Delete(context.Background(), c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.Delete(context.Background(), c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ── DiagnosisLink Tests ──

func TestDiagnosisLink(t *testing.T) {
	f := newFixture()
	c := &Consultation{
		PatientID:      f.patient,
		ChiefComplaint: "Fièvre",
		Symptoms:       []string{"fièvre"},
		VitalSigns:     diagnosis.VitalSigns{Temperature: ptrF(39.6)},
	}
	if err := f.svc.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	link := NewDiagnosisLink(f.repo)

	cc, err := link.ConsultationContext(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ConsultationContext: %v", err)
	}
	if cc.PatientID != f.patient || len(cc.Symptoms) != 1 || *cc.VitalSigns.Temperature != 39.6 {
		t.Errorf("unexpected context %+v", cc)
	}
	if _, err := link.ConsultationContext(context.Background(), uuid.New()); !errors.Is(err, diagnosis.ErrNotFound) {
		t.Errorf("expected diagnosis.ErrNotFound, got %v", err)
	}

	report := &diagnosis.Report{UrgencyLevel: diagnosis.UrgencyPriority}
	if err := link.AttachDiagnosis(context.Background(), c.ID, report); err != nil {
		t.Fatalf("AttachDiagnosis: %v", err)
	}
	stored, _ := f.svc.Get(context.Background(), c.ID)
	if stored.AIDiagnosis == nil || stored.AIDiagnosis.UrgencyLevel != diagnosis.UrgencyPriority {
		t.Errorf("expected attached report, got %+v", stored.AIDiagnosis)
	}
	if err := link.AttachDiagnosis(context.Background(), uuid.New(), report); !errors.Is(err, diagnosis.ErrNotFound) {
		t.Errorf("expected diagnosis.ErrNotFound, got %v", err)
	}
}
