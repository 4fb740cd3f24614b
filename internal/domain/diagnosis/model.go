package diagnosis

import (
	"time"

	"github.com/google/uuid"
)

type ImageType string

const (
	ImageXRay       ImageType = "xray"
	ImageCT         ImageType = "ct"
	ImageMRI        ImageType = "mri"
	ImageRetinal    ImageType = "retinal"
	ImageUltrasound ImageType = "ultrasound"
	ImageOther      ImageType = "other"
)

var validImageTypes = map[ImageType]bool{
	ImageXRay: true, ImageCT: true, ImageMRI: true,
	ImageRetinal: true, ImageUltrasound: true, ImageOther: true,
}

func (t ImageType) Valid() bool { return validImageTypes[t] }

type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
)

func (s Severity) Valid() bool {
	return s == SeverityNormal || s == SeverityMild || s == SeverityModerate
}

type ConditionStatus string

const (
	StatusActive   ConditionStatus = "active"
	StatusResolved ConditionStatus = "resolved"
	StatusChronic  ConditionStatus = "chronic"
)

func (s ConditionStatus) Valid() bool {
	return s == StatusActive || s == StatusResolved || s == StatusChronic
}

// VitalSigns holds optional readings. A nil field was not measured.
type VitalSigns struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	RespiratoryRate  *float64 `json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	BloodPressure    *string  `json:"blood_pressure,omitempty"`
	Weight           *float64 `json:"weight,omitempty"`
	Height           *float64 `json:"height,omitempty"`
}

// IsEmpty reports whether no reading is present.
func (v VitalSigns) IsEmpty() bool {
	return v.Temperature == nil && v.HeartRate == nil && v.RespiratoryRate == nil &&
		v.OxygenSaturation == nil && v.BloodPressure == nil && v.Weight == nil && v.Height == nil
}

type ConditionRecord struct {
	Condition string          `json:"condition"`
	Status    ConditionStatus `json:"status"`
}

type Pathology struct {
	Name            string   `json:"name"`
	Probability     float64  `json:"probability"`
	Severity        Severity `json:"severity,omitempty"`
	Location        string   `json:"location,omitempty"`
	Density         string   `json:"density,omitempty"`
	Size            string   `json:"size,omitempty"`
	Dimensions      string   `json:"dimensions,omitempty"`
	HUValue         string   `json:"hu_value,omitempty"`
	Extent          string   `json:"extent,omitempty"`
	Characteristics string   `json:"characteristics,omitempty"`
}

// ImageFinding is the assessed content of one image.
type ImageFinding struct {
	ImageID        string      `json:"image_id,omitempty"`
	ImageType      ImageType   `json:"image_type"`
	BodyPart       string      `json:"body_part,omitempty"`
	Pathologies    []Pathology `json:"pathologies"`
	Confidence     float64     `json:"confidence"`
	ImageQuality   string      `json:"image_quality,omitempty"`
	TechnicalNotes string      `json:"technical_notes,omitempty"`
}

// Input is everything one diagnosis is computed from. Every part may be empty.
type Input struct {
	Symptoms   []string          `json:"symptoms"`
	VitalSigns VitalSigns        `json:"vital_signs"`
	History    []ConditionRecord `json:"history"`
	Images     []ImageFinding    `json:"images"`
}

type SymptomSeverity string

const (
	SymptomsMild     SymptomSeverity = "mild"
	SymptomsModerate SymptomSeverity = "moderate"
)

type SymptomAssessment struct {
	ReportedSymptoms   []string        `json:"reported_symptoms"`
	PossibleConditions []string        `json:"possible_conditions"`
	Severity           SymptomSeverity `json:"severity"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

type RiskAssessment struct {
	ActiveConditions         []string  `json:"active_conditions"`
	ChronicConditions        []string  `json:"chronic_conditions"`
	RiskLevel                RiskLevel `json:"risk_level"`
	RequiresSpecialAttention bool      `json:"requires_special_attention"`
}

type VitalAlert string

const (
	AlertHighFever    VitalAlert = "high fever"
	AlertHypothermia  VitalAlert = "hypothermia"
	AlertTachycardia  VitalAlert = "tachycardia"
	AlertBradycardia  VitalAlert = "bradycardia"
	AlertLowOxygenSat VitalAlert = "low oxygen saturation"
)

type VitalStatus string

const (
	VitalsNormal   VitalStatus = "normal"
	VitalsWarning  VitalStatus = "warning"
	VitalsCritical VitalStatus = "critical"
)

type VitalAssessment struct {
	VitalSigns VitalSigns   `json:"vital_signs"`
	Alerts     []VitalAlert `json:"alerts"`
	Status     VitalStatus  `json:"status"`
}

type Findings struct {
	Symptoms    SymptomAssessment `json:"symptoms"`
	Images      []ImageFinding    `json:"images"`
	VitalSigns  VitalAssessment   `json:"vital_signs"`
	RiskFactors RiskAssessment    `json:"risk_factors"`
}

// Report is the result of one aggregation. The caller owns it.
type Report struct {
	Diagnosis             string    `json:"diagnosis"`
	DifferentialDiagnoses []string  `json:"differential_diagnoses"`
	ConfidenceScore       float64   `json:"confidence_score"`
	Findings              Findings  `json:"findings"`
	Recommendations       []string  `json:"recommendations"`
	UrgencyLevel          Urgency   `json:"urgency_level"`
	SuggestedTests        []string  `json:"suggested_tests"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// Record is a stored report for a patient.
type Record struct {
	ID             uuid.UUID   `json:"id"`
	PatientID      uuid.UUID   `json:"patient_id"`
	ConsultationID *uuid.UUID  `json:"consultation_id,omitempty"`
	ImageIDs       []uuid.UUID `json:"image_ids"`
	RequestedBy    string      `json:"requested_by"`
	Report         *Report     `json:"report"`
	CreatedAt      time.Time   `json:"created_at"`
}
