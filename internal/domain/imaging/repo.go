package imaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

var (
	ErrNotFound           = errors.New("image not found")
	ErrAnalysisNotFound   = errors.New("analysis not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrInvalid            = errors.New("invalid image")
	ErrTooLarge           = errors.New("file too large")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
)

// ListFilter narrows image listings. Zero fields match everything.
type ListFilter struct {
	UserID    string
	PatientID *uuid.UUID
	ImageType diagnosis.ImageType
}

type ImageRepository interface {
	Create(ctx context.Context, img *MedicalImage) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalImage, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*MedicalImage, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AnalysisStatus, confidence *float64, analyzedAt *time.Time) error
	// Delete removes the image row and its analyses.
	Delete(ctx context.Context, id uuid.UUID) error
}

type AnalysisRepository interface {
	// Create returns ErrAnalysisInProgress when the image already has a
	// pending or processing analysis.
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	Update(ctx context.Context, a *Analysis) error
	ListByImage(ctx context.Context, imageID uuid.UUID) ([]*Analysis, error)
	// LatestCompleted returns ErrAnalysisNotFound when the image has no
	// completed analysis.
	LatestCompleted(ctx context.Context, imageID uuid.UUID) (*Analysis, error)
	HasActive(ctx context.Context, imageID uuid.UUID) (bool, error)
}
