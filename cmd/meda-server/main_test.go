package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Markitchi/Meda/internal/config"
	"github.com/Markitchi/Meda/internal/domain/diagnosis"
	"github.com/Markitchi/Meda/internal/platform/auth"
	"github.com/Markitchi/Meda/internal/platform/blobstore"
	"github.com/Markitchi/Meda/internal/platform/imageai"
)

func TestRunDiagnose_Urgent(t *testing.T) {
	in := `{"symptoms": ["Douleur thoracique depuis 2h"], "vital_signs": {"temperature": 37.2}}`
	var out bytes.Buffer
	if err := runDiagnose(context.Background(), strings.NewReader(in), &out, diagnosis.DefaultOptions(), nil, 2, zerolog.Nop()); err != nil {
		t.Fatalf("runDiagnose: %v", err)
	}
	var report diagnosis.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.UrgencyLevel != diagnosis.UrgencyUrgent {
		t.Errorf("expected urgent, got %s", report.UrgencyLevel)
	}
	if !strings.Contains(out.String(), "\n  \"diagnosis\"") {
		t.Error("expected indented output")
	}
}

func TestRunDiagnose_ScansNeedAnalyzer(t *testing.T) {
	in := `{"scans": [{"image_type": "xray", "body_part": "chest"}]}`
	err := runDiagnose(context.Background(), strings.NewReader(in), &bytes.Buffer{}, diagnosis.DefaultOptions(), nil, 2, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "--analyze-images") {
		t.Errorf("expected analyzer hint, got %v", err)
	}
}

func TestRunDiagnose_WithScans(t *testing.T) {
	analyzer, err := imageai.NewAnalyzer(imageai.Config{Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	in := `{"symptoms": ["toux"], "scans": [{"image_type": "xray", "body_part": "chest"}, {"image_type": "retinal"}]}`
	var out bytes.Buffer
	if err := runDiagnose(context.Background(), strings.NewReader(in), &out, diagnosis.DefaultOptions(), analyzer, 2, zerolog.Nop()); err != nil {
		t.Fatalf("runDiagnose: %v", err)
	}
	var report diagnosis.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Findings.Images) != 2 {
		t.Fatalf("expected 2 image findings, got %d", len(report.Findings.Images))
	}
	if report.Findings.Images[0].ImageID != "scan-1" || report.Findings.Images[1].ImageType != diagnosis.ImageRetinal {
		t.Errorf("unexpected image findings %+v", report.Findings.Images)
	}
}

// flakyProvider fails every assessment of the given image type.
type flakyProvider struct {
	failing diagnosis.ImageType
	inner   diagnosis.ImageFindingProvider
}

func (p flakyProvider) Assess(ctx context.Context, imageType diagnosis.ImageType, bodyPart string) (*diagnosis.ImageAssessment, error) {
	if imageType == p.failing {
		return nil, errors.New("scanner offline")
	}
	return p.inner.Assess(ctx, imageType, bodyPart)
}

func TestRunDiagnose_FailedScanIsSkipped(t *testing.T) {
	analyzer, err := imageai.NewAnalyzer(imageai.Config{Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	provider := flakyProvider{failing: diagnosis.ImageCT, inner: analyzer}
	in := `{"scans": [{"image_type": "ct", "body_part": "brain"}, {"image_type": "xray", "body_part": "chest"}, {"image_type": "retinal"}]}`
	var out bytes.Buffer
	if err := runDiagnose(context.Background(), strings.NewReader(in), &out, diagnosis.DefaultOptions(), provider, 3, zerolog.Nop()); err != nil {
		t.Fatalf("runDiagnose: %v", err)
	}
	var report diagnosis.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	images := report.Findings.Images
	if len(images) != 2 {
		t.Fatalf("expected 2 image findings, got %d", len(images))
	}
	if images[0].ImageID != "scan-2" || images[1].ImageID != "scan-3" {
		t.Errorf("expected input order to be kept, got %s, %s", images[0].ImageID, images[1].ImageID)
	}
}

func TestRunDiagnose_BadInput(t *testing.T) {
	analyzer, _ := imageai.NewAnalyzer(imageai.Config{})
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "symptoms"},
		{"unknown field", `{"symptom": ["toux"]}`},
		{"bad scan type", `{"scans": [{"image_type": "pet"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runDiagnose(context.Background(), strings.NewReader(tt.in), &bytes.Buffer{}, diagnosis.DefaultOptions(), analyzer, 2, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	store, err := newStore(&config.Config{StorageBackend: "memory"})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if _, ok := store.(*blobstore.MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", store)
	}
	if _, err := newStore(&config.Config{StorageBackend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestMigrationFiles_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationFiles(""), "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_core.sql" {
		t.Errorf("unexpected embedded migrations %v", names)
	}
}

func TestAuthMiddleware_Dev(t *testing.T) {
	mw, err := authMiddleware(&config.Config{Env: "development"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("authMiddleware: %v", err)
	}
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	var user string
	err = mw(func(c echo.Context) error {
		user = auth.UserIDFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == "" {
		t.Error("expected a development user")
	}
}

func TestAuthMiddleware_BadKey(t *testing.T) {
	if _, err := authMiddleware(&config.Config{Env: "production", AuthSigningKey: "zz"}, zerolog.Nop()); err == nil {
		t.Error("expected error for non-hex signing key")
	}
}
