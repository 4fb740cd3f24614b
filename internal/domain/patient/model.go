package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Phone, email and address are stored
// encrypted when a PHI key is configured.
type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientNumber      string     `db:"patient_number" json:"patient_id"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	DateOfBirth        *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender             *string    `db:"gender" json:"gender,omitempty"`
	Allergies          *string    `db:"allergies" json:"allergies,omitempty"`
	CurrentMedications *string    `db:"current_medications" json:"current_medications,omitempty"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Email              *string    `db:"email" json:"email,omitempty"`
	Address            *string    `db:"address" json:"address,omitempty"`
	CreatedBy          string     `db:"created_by" json:"created_by"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Update holds the fields of a partial update. Nil fields are left as is.
type Update struct {
	FirstName          *string    `json:"first_name"`
	LastName           *string    `json:"last_name"`
	DateOfBirth        *time.Time `json:"date_of_birth"`
	Gender             *string    `json:"gender"`
	Allergies          *string    `json:"allergies"`
	CurrentMedications *string    `json:"current_medications"`
	Phone              *string    `json:"phone"`
	Email              *string    `json:"email"`
	Address            *string    `json:"address"`
}

func (u *Update) apply(p *Patient) {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = u.DateOfBirth
	}
	if u.Gender != nil {
		p.Gender = u.Gender
	}
	if u.Allergies != nil {
		p.Allergies = u.Allergies
	}
	if u.CurrentMedications != nil {
		p.CurrentMedications = u.CurrentMedications
	}
	if u.Phone != nil {
		p.Phone = u.Phone
	}
	if u.Email != nil {
		p.Email = u.Email
	}
	if u.Address != nil {
		p.Address = u.Address
	}
}

// MedicalHistory is one past or ongoing condition of a patient.
type MedicalHistory struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	Condition     string     `db:"condition" json:"condition"`
	DiagnosedDate *time.Time `db:"diagnosed_date" json:"diagnosed_date,omitempty"`
	Status        string     `db:"status" json:"status"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
