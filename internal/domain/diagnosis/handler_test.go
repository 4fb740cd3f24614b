package diagnosis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Markitchi/Meda/internal/platform/auth"
)

func newRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithUser(req.Context(), "doc-1", []string{auth.RoleDoctor}))
}

func TestHandler_CreateDiagnosis(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"symptoms":["douleur thoracique"],"vital_signs":{"heart_rate":128}}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", body), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if err := h.CreateDiagnosis(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RequestedBy != "doc-1" {
		t.Errorf("expected requester doc-1, got %q", got.RequestedBy)
	}
	if got.Report == nil || got.Report.UrgencyLevel != UrgencyUrgent {
		t.Errorf("expected urgent report, got %+v", got.Report)
	}
	if !strings.Contains(rec.Body.String(), `"urgency_level":"urgent"`) {
		t.Errorf("expected urgency serialized as text, got %s", rec.Body.String())
	}
}

func TestHandler_CreateDiagnosis_Errors(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	tests := []struct {
		name   string
		param  string
		body   string
		status int
	}{
		{"invalid id", "not-a-uuid", `{}`, http.StatusBadRequest},
		{"bad body", f.patientID.String(), `{"symptoms":`, http.StatusBadRequest},
		{"unknown patient", uuid.New().String(), `{}`, http.StatusNotFound},
		{"unknown consultation", f.patientID.String(), `{"consultation_id":"` + uuid.New().String() + `"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(newRequest(http.MethodPost, "/", tt.body), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.param)
			err := h.CreateDiagnosis(c)
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected HTTPError, got %v", err)
			}
			if he.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, he.Code)
			}
		})
	}
}

func TestHandler_GetDiagnosis(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	stored, err := f.svc.Diagnose(newRequest(http.MethodGet, "/", "").Context(), f.patientID, Request{}, "doc-1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())
	if err := h.GetDiagnosis(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(newRequest(http.MethodGet, "/", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	err = h.GetDiagnosis(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ListPatientDiagnoses(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Diagnose(newRequest(http.MethodGet, "/", "").Context(), f.patientID, Request{}, "doc-1"); err != nil {
			t.Fatalf("Diagnose: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/?limit=2", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())
	if err := h.ListPatientDiagnoses(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Record `json:"data"`
		Total   int      `json:"total"`
		HasMore bool     `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 2 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}
}

func TestHandler_Evaluate(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"symptoms":["fièvre"],"vital_signs":{"oxygen_saturation":88},
		"history":[{"condition":"Asthme","status":"active"}],
		"images":[{"image_type":"xray","body_part":"thorax","confidence":0.9,
			"pathologies":[{"name":"Pneumonie","probability":0.8,"severity":"moderate"}]}]}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", body), rec)
	if err := h.Evaluate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UrgencyLevel != UrgencyUrgent {
		t.Errorf("expected urgent for low oxygen saturation, got %s", got.UrgencyLevel)
	}
	if !contains(got.DifferentialDiagnoses, "Pneumonie (80%)") {
		t.Errorf("expected image finding in differential, got %v", got.DifferentialDiagnoses)
	}
	if len(f.records.records) != 0 {
		t.Error("evaluate must not persist")
	}
}

func TestHandler_DownloadPDF(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	stored, err := f.svc.Diagnose(newRequest(http.MethodGet, "/", "").Context(), f.patientID, Request{}, "doc-1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())
	if err := h.DownloadPDF(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), stored.ID.String()) {
		t.Errorf("expected filename with id, got %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_DownloadPDF_NoRenderer(t *testing.T) {
	f := newFixture()
	f.svc.renderer = nil
	stored, err := f.svc.Diagnose(newRequest(http.MethodGet, "/", "").Context(), f.patientID, Request{}, "doc-1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	c := echo.New().NewContext(newRequest(http.MethodGet, "/", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())
	err = NewHandler(f.svc).DownloadPDF(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", err)
	}
}
