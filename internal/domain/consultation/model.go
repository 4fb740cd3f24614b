package consultation

import (
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

// Consultation maps to the consultation table. Symptoms, vital signs and the
// generated diagnosis are stored as JSONB.
type Consultation struct {
	ID               uuid.UUID            `db:"id" json:"id"`
	PatientID        uuid.UUID            `db:"patient_id" json:"patient_id"`
	DoctorID         string               `db:"doctor_id" json:"doctor_id"`
	ConsultationDate time.Time            `db:"consultation_date" json:"consultation_date"`
	ChiefComplaint   string               `db:"chief_complaint" json:"chief_complaint"`
	Symptoms         []string             `db:"symptoms" json:"symptoms"`
	VitalSigns       diagnosis.VitalSigns `db:"vital_signs" json:"vital_signs"`
	Diagnosis        *string              `db:"diagnosis" json:"diagnosis,omitempty"`
	AIDiagnosis      *diagnosis.Report    `db:"ai_diagnosis" json:"ai_diagnosis,omitempty"`
	TreatmentPlan    *string              `db:"treatment_plan" json:"treatment_plan,omitempty"`
	Notes            *string              `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}
