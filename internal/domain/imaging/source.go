package imaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

// DiagnosisSource hands a patient's images to the diagnosis service, reusing
// the latest completed analysis so analysed images are not assessed again.
type DiagnosisSource struct {
	svc *Service
}

func NewDiagnosisSource(svc *Service) *DiagnosisSource {
	return &DiagnosisSource{svc: svc}
}

func (d *DiagnosisSource) ImageRefs(ctx context.Context, patientID uuid.UUID, imageIDs []uuid.UUID) ([]diagnosis.ImageRef, error) {
	refs := make([]diagnosis.ImageRef, 0, len(imageIDs))
	for _, id := range imageIDs {
		img, err := d.svc.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("image %s: %w", id, diagnosis.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		// an image of another patient is reported exactly like a missing one
		if img.PatientID == nil || *img.PatientID != patientID {
			return nil, fmt.Errorf("image %s: %w", id, diagnosis.ErrNotFound)
		}
		assessment, err := d.svc.LatestAssessment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("image %s analysis: %w", id, err)
		}
		refs = append(refs, diagnosis.ImageRef{
			ID:         id.String(),
			ImageType:  img.ImageType,
			BodyPart:   img.bodyPart(),
			Assessment: assessment,
		})
	}
	return refs, nil
}
