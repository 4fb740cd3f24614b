package diagnosis

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ImageAssessment is what an image finding provider reports for one image.
type ImageAssessment struct {
	Pathologies     []Pathology `json:"pathologies"`
	ImageQuality    string      `json:"image_quality,omitempty"`
	TechnicalNotes  string      `json:"technical_notes,omitempty"`
	ConfidenceScore float64     `json:"confidence_score"`
	Recommendations string      `json:"recommendations,omitempty"`
}

// ImageFindingProvider assesses one image from its type and body region.
type ImageFindingProvider interface {
	Assess(ctx context.Context, imageType ImageType, bodyPart string) (*ImageAssessment, error)
}

// ImageRef identifies an image to include in a diagnosis. When Assessment is
// set it was already analysed and the provider is not called.
type ImageRef struct {
	ID         string
	ImageType  ImageType
	BodyPart   string
	Assessment *ImageAssessment
}

// Finding converts an assessment into the aggregator's input shape.
func (a *ImageAssessment) Finding(ref ImageRef) ImageFinding {
	pathologies := make([]Pathology, len(a.Pathologies))
	copy(pathologies, a.Pathologies)
	return ImageFinding{
		ImageID:        ref.ID,
		ImageType:      ref.ImageType,
		BodyPart:       ref.BodyPart,
		Pathologies:    pathologies,
		Confidence:     a.ConfidenceScore,
		ImageQuality:   a.ImageQuality,
		TechnicalNotes: a.TechnicalNotes,
	}
}

// ResolveFindings produces one finding per image, in the order of refs.
// Images without a stored assessment are sent to the provider, at most
// concurrency at a time. An image whose assessment fails is logged and left
// out. A cancelled ctx stops outstanding calls and is returned.
func ResolveFindings(ctx context.Context, provider ImageFindingProvider, refs []ImageRef, concurrency int, logger zerolog.Logger) ([]ImageFinding, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]*ImageFinding, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range refs {
		if ref.Assessment != nil {
			f := ref.Assessment.Finding(ref)
			results[i] = &f
			continue
		}
		if provider == nil {
			logger.Warn().Str("image_id", ref.ID).Msg("no image finding provider, image skipped")
			continue
		}
		i, ref := i, ref
		g.Go(func() error {
			a, err := provider.Assess(gctx, ref.ImageType, ref.BodyPart)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn().Err(err).Str("image_id", ref.ID).Str("image_type", string(ref.ImageType)).
					Msg("image assessment failed, image skipped")
				return nil
			}
			if a == nil {
				return nil
			}
			f := a.Finding(ref)
			results[i] = &f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make([]ImageFinding, 0, len(refs))
	for _, f := range results {
		if f != nil {
			findings = append(findings, *f)
		}
	}
	return findings, nil
}
