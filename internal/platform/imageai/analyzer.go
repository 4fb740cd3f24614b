// Package imageai provides a simulated medical image analyzer. It produces
// plausible findings from per-modality templates and stands in for a real
// inference backend.
package imageai

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

const defaultBodyPart = "default"

var templates = map[diagnosis.ImageType]map[string][]diagnosis.Pathology{
	diagnosis.ImageXRay: {
		"chest": {
			{Name: "Aucune anomalie détectée", Probability: 0.95, Severity: diagnosis.SeverityNormal},
			{Name: "Pneumonie possible", Probability: 0.72, Location: "Lobe inférieur droit", Severity: diagnosis.SeverityModerate},
			{Name: "Cardiomégalie légère", Probability: 0.45, Severity: diagnosis.SeverityMild},
		},
		defaultBodyPart: {
			{Name: "Structure osseuse normale", Probability: 0.88, Severity: diagnosis.SeverityNormal},
			{Name: "Fracture possible", Probability: 0.15, Severity: diagnosis.SeverityModerate},
		},
	},
	diagnosis.ImageCT: {
		"brain": {
			{Name: "Aucune anomalie détectée", Probability: 0.92, Severity: diagnosis.SeverityNormal},
			{Name: "Lésion hypodense mineure", Probability: 0.35, Location: "Lobe frontal", Severity: diagnosis.SeverityMild},
		},
		defaultBodyPart: {
			{Name: "Tissus normaux", Probability: 0.90, Severity: diagnosis.SeverityNormal},
		},
	},
	diagnosis.ImageMRI: {
		defaultBodyPart: {
			{Name: "Signal normal", Probability: 0.93, Severity: diagnosis.SeverityNormal},
			{Name: "Inflammation légère", Probability: 0.28, Severity: diagnosis.SeverityMild},
		},
	},
	diagnosis.ImageRetinal: {
		defaultBodyPart: {
			{Name: "Rétine saine", Probability: 0.89, Severity: diagnosis.SeverityNormal},
			{Name: "Microanévrismes détectés", Probability: 0.42, Severity: diagnosis.SeverityMild},
			{Name: "Rétinopathie diabétique possible", Probability: 0.25, Severity: diagnosis.SeverityModerate},
		},
	},
	diagnosis.ImageUltrasound: {
		defaultBodyPart: {
			{Name: "Échogénicité normale", Probability: 0.87, Severity: diagnosis.SeverityNormal},
		},
	},
}

var imageQualities = []string{
	"Excellente qualité d'image",
	"Bonne exposition, positionnement correct",
	"Qualité acceptable pour diagnostic",
	"Images de haute qualité",
}

var technicalNotes = []string{
	"Protocole standard respecté",
	"Acquisition optimale",
	"Paramètres techniques appropriés",
}

const (
	minConfidence   = 0.75
	maxConfidence   = 0.95
	maxFindings     = 3
	recommendJoiner = " • "
)

// Config controls the simulated processing time. A zero MaxDelay disables
// the delay.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Seed     uint64
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	cfg Config
	mu  sync.Mutex
	rng *rand.Rand
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.MinDelay < 0 || cfg.MaxDelay < 0 {
		return nil, fmt.Errorf("analysis delays must not be negative")
	}
	if cfg.MaxDelay > 0 && cfg.MinDelay > cfg.MaxDelay {
		return nil, fmt.Errorf("minimum delay %s exceeds maximum delay %s", cfg.MinDelay, cfg.MaxDelay)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Analyzer{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed>>1|1))}, nil
}

// Assess simulates the analysis of one image. It returns ctx.Err() when the
// context ends before the simulated processing does.
func (a *Analyzer) Assess(ctx context.Context, imageType diagnosis.ImageType, bodyPart string) (*diagnosis.ImageAssessment, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	candidates := templatesFor(imageType, bodyPart)
	n := 1 + a.rng.IntN(min(maxFindings, len(candidates)))
	picked := make([]diagnosis.Pathology, 0, n)
	for _, i := range a.rng.Perm(len(candidates))[:n] {
		picked = append(picked, candidates[i])
	}

	confidence := minConfidence + a.rng.Float64()*(maxConfidence-minConfidence)
	return &diagnosis.ImageAssessment{
		Pathologies:     picked,
		ImageQuality:    imageQualities[a.rng.IntN(len(imageQualities))],
		TechnicalNotes:  technicalNotes[a.rng.IntN(len(technicalNotes))],
		ConfidenceScore: math.Round(confidence*100) / 100,
		Recommendations: Recommendations(picked),
	}, nil
}

func (a *Analyzer) wait(ctx context.Context) error {
	if a.cfg.MaxDelay <= 0 {
		return ctx.Err()
	}
	d := a.cfg.MinDelay
	if spread := a.cfg.MaxDelay - a.cfg.MinDelay; spread > 0 {
		a.mu.Lock()
		d += time.Duration(a.rng.Int64N(int64(spread) + 1))
		a.mu.Unlock()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// templatesFor picks the body-specific templates of a modality, falling back
// to the modality default and then to the x-ray set.
func templatesFor(imageType diagnosis.ImageType, bodyPart string) []diagnosis.Pathology {
	byPart, ok := templates[imageType]
	if !ok {
		byPart = templates[diagnosis.ImageXRay]
	}
	if part := strings.ToLower(strings.TrimSpace(bodyPart)); part != "" {
		if list, ok := byPart[part]; ok {
			return list
		}
	}
	return byPart[defaultBodyPart]
}

// Recommendations derives follow-up advice from the most severe finding.
func Recommendations(pathologies []diagnosis.Pathology) string {
	var moderate, mild bool
	for _, p := range pathologies {
		switch p.Severity {
		case diagnosis.SeverityModerate:
			moderate = true
		case diagnosis.SeverityMild:
			mild = true
		}
	}
	var out []string
	switch {
	case moderate:
		out = []string{"Consultation spécialisée recommandée", "Suivi clinique dans les 7 jours"}
	case mild:
		out = []string{"Surveillance recommandée", "Contrôle dans 3-6 mois"}
	default:
		out = []string{"Aucun suivi immédiat nécessaire", "Examen de routine annuel"}
	}
	out = append(out, "Corrélation clinique recommandée")
	return strings.Join(out, recommendJoiner)
}
