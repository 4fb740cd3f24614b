package pdfreport

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

var _ diagnosis.Renderer = (*Renderer)(nil)

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("")
	if errors.Is(err, ErrNoFont) {
		t.Skip("no DejaVu font installed")
	}
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func TestFindFont_Missing(t *testing.T) {
	_, err := FindFont(filepath.Join(t.TempDir(), "missing.ttf"))
	if !errors.Is(err, ErrNoFont) {
		t.Errorf("expected ErrNoFont, got %v", err)
	}
}

func TestFindFont_Directory(t *testing.T) {
	if _, err := FindFont(t.TempDir()); !errors.Is(err, ErrNoFont) {
		t.Errorf("expected ErrNoFont for a directory, got %v", err)
	}
}

func TestRender(t *testing.T) {
	r := testRenderer(t)
	rec := &diagnosis.Record{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Report: &diagnosis.Report{
			Diagnosis: "Problème cardiaque, Problème pulmonaire\n\nDétails cliniques:\n" +
				"• Douleur thoracique: Nécessite évaluation cardiaque urgente. " + strings.Repeat("ECG 12 dérivations. ", 30),
			DifferentialDiagnoses: []string{"Problème cardiaque", "Problème pulmonaire"},
			ConfidenceScore:       0.71,
			Recommendations:       []string{"[URGENT] Consultation immédiate"},
			UrgencyLevel:          diagnosis.UrgencyUrgent,
			GeneratedAt:           time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, "Awa Diallo", rec); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("expected PDF header, got %q", buf.Bytes()[:8])
	}
}

func TestRender_LongListsPaginate(t *testing.T) {
	r := testRenderer(t)
	tests := make([]string, 120)
	for i := range tests {
		tests[i] = "Examen complémentaire numéro " + strings.Repeat("x", i%40)
	}
	rec := &diagnosis.Record{
		ID: uuid.New(),
		Report: &diagnosis.Report{
			Diagnosis:      "Évaluation clinique complète nécessaire",
			SuggestedTests: tests,
		},
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, "", rec); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected output")
	}
}

func TestRender_NoReport(t *testing.T) {
	r := &Renderer{fontPath: "unused", now: time.Now}
	if err := r.Render(&bytes.Buffer{}, "x", &diagnosis.Record{}); err == nil {
		t.Error("expected error for a record without report")
	}
}

func TestUrgencyLabel(t *testing.T) {
	if urgencyLabel(diagnosis.UrgencyPriority) != "Prioritaire" {
		t.Errorf("unexpected label %q", urgencyLabel(diagnosis.UrgencyPriority))
	}
}
