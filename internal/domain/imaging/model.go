package imaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

func (s AnalysisStatus) active() bool {
	return s == StatusPending || s == StatusProcessing
}

// MedicalImage maps to the medical_image table. The file itself lives in the
// object store under ObjectKey.
type MedicalImage struct {
	ID               uuid.UUID           `db:"id" json:"id"`
	Filename         string              `db:"filename" json:"filename"`
	OriginalFilename string              `db:"original_filename" json:"original_filename"`
	ObjectKey        string              `db:"object_key" json:"-"`
	FileSize         int64               `db:"file_size" json:"file_size"`
	MimeType         string              `db:"mime_type" json:"mime_type"`
	ImageType        diagnosis.ImageType `db:"image_type" json:"image_type"`
	Modality         *string             `db:"modality" json:"modality,omitempty"`
	BodyPart         *string             `db:"body_part" json:"body_part,omitempty"`
	AnalysisStatus   AnalysisStatus      `db:"analysis_status" json:"analysis_status"`
	ConfidenceScore  *float64            `db:"confidence_score" json:"confidence_score,omitempty"`
	UserID           string              `db:"user_id" json:"user_id"`
	PatientID        *uuid.UUID          `db:"patient_id" json:"patient_id,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
	AnalyzedAt       *time.Time          `db:"analyzed_at" json:"analyzed_at,omitempty"`
}

func (m *MedicalImage) bodyPart() string {
	if m.BodyPart == nil {
		return ""
	}
	return *m.BodyPart
}

// Analysis is one run of the image finding provider over an image.
type Analysis struct {
	ID              uuid.UUID                  `db:"id" json:"id"`
	ImageID         uuid.UUID                  `db:"image_id" json:"image_id"`
	Status          AnalysisStatus             `db:"status" json:"status"`
	ConfidenceScore *float64                   `db:"confidence_score" json:"confidence_score"`
	Findings        *diagnosis.ImageAssessment `db:"findings" json:"findings"`
	Recommendations *string                    `db:"recommendations" json:"recommendations"`
	CreatedAt       time.Time                  `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time                 `db:"completed_at" json:"completed_at"`
}
