package diagnosis

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Options tunes the aggregator. Zero or out-of-range values fall back to the
// defaults.
type Options struct {
	ConfidenceBaseline float64
	ConfidenceCap      float64
	MaxDifferential    int
	Now                func() time.Time
}

func DefaultOptions() Options {
	return Options{
		ConfidenceBaseline: 0.65,
		ConfidenceCap:      0.92,
		MaxDifferential:    7,
		Now:                time.Now,
	}
}

// Aggregator fuses symptoms, vital signs, history and image findings into a
// Report. It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	opts Options
}

func NewAggregator(opts Options) *Aggregator {
	def := DefaultOptions()
	if math.IsNaN(opts.ConfidenceCap) || opts.ConfidenceCap <= 0 || opts.ConfidenceCap > 1 {
		opts.ConfidenceCap = def.ConfidenceCap
	}
	if math.IsNaN(opts.ConfidenceBaseline) || opts.ConfidenceBaseline <= 0 {
		opts.ConfidenceBaseline = def.ConfidenceBaseline
	}
	if opts.ConfidenceBaseline > opts.ConfidenceCap {
		opts.ConfidenceBaseline = opts.ConfidenceCap
	}
	if opts.MaxDifferential < 1 {
		opts.MaxDifferential = def.MaxDifferential
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Aggregator{opts: opts}
}

func (a *Aggregator) Options() Options { return a.opts }

// synthesis accumulates the state of one Diagnose call. Urgency and confidence
// only move up.
type synthesis struct {
	differential *rankedSet
	details      *orderedSet
	confidence   float64
	urgency      Urgency
}

func (s *synthesis) raise(u Urgency) {
	s.urgency = s.urgency.Raise(u)
}

func (s *synthesis) imagePass(images []ImageFinding) {
	for _, img := range images {
		bodyPart := strings.TrimSpace(img.BodyPart)
		if bodyPart == "" {
			bodyPart = defaultBodyPart
		}
		for _, p := range img.Pathologies {
			if p.Probability <= 0.5 {
				continue
			}
			pct := percent(p.Probability)
			rank := UrgencyRoutine
			if p.Severity == SeverityModerate {
				rank = UrgencyPriority
			}
			s.differential.add(fmt.Sprintf("%s (%d%%)", strings.TrimSpace(p.Name), pct), rank)
			s.details.add(imageDetail(img.ImageType, bodyPart, p, pct))
			s.confidence = math.Max(s.confidence, p.Probability)
		}
	}
}

func (s *synthesis) symptomPass(symptoms []string) {
	for _, symptom := range symptoms {
		text := normalize(symptom)
		for i := range symptomRules {
			r := &symptomRules[i]
			if !r.matches(text) {
				continue
			}
			for _, h := range r.hypotheses {
				s.differential.add(h, r.urgency)
			}
			s.details.add(r.detail)
			s.raise(r.urgency)
			break
		}
	}
}

func (r *symptomRule) matches(text string) bool {
	for _, group := range r.match {
		if !containsAny(text, group) {
			return false
		}
	}
	return len(r.match) > 0
}

func (s *synthesis) vitalPass(hits []vitalHit) {
	for _, h := range hits {
		s.details.add(h.rule.detail(h.value))
		s.raise(h.rule.urgency(h.value))
	}
}

func (s *synthesis) riskPass(risk RiskAssessment) {
	if risk.RiskLevel != RiskHigh {
		return
	}
	s.raise(UrgencyPriority)
	s.differential.add(comorbidityHypothesis, UrgencyPriority)

	names := risk.ActiveConditions
	if len(names) == 0 {
		names = risk.ChronicConditions
	}
	if len(names) > 3 {
		names = names[:3]
	}
	s.details.add(fmt.Sprintf("• Terrain à risque: Antécédents de %s. "+
		"Surveillance renforcée et adaptation thérapeutique nécessaires.", strings.Join(names, ", ")))
}

// Diagnose builds the report for in. It never fails; unusable parts of the
// input are ignored.
func (a *Aggregator) Diagnose(in Input) *Report {
	symptoms := assessSymptoms(in.Symptoms)
	risk := assessRisk(in.History)
	vitals, hits := assessVitals(in.VitalSigns)
	images := sanitizeImages(in.Images)

	s := &synthesis{
		differential: newRankedSet(),
		details:      newOrderedSet(),
		confidence:   a.opts.ConfidenceBaseline,
	}
	s.imagePass(images)
	s.symptomPass(symptoms.ReportedSymptoms)
	s.vitalPass(hits)
	s.riskPass(risk)

	differential := s.differential.top(a.opts.MaxDifferential)
	primary := fallbackDiagnosis
	if len(differential) > 0 {
		primary = "Suspicion de " + differential[0]
	}
	if details := s.details.values(); len(details) > 0 {
		primary += detailsHeader + strings.Join(details, "\n")
	}

	return &Report{
		Diagnosis:             primary,
		DifferentialDiagnoses: differential,
		ConfidenceScore:       math.Min(s.confidence, a.opts.ConfidenceCap),
		Findings: Findings{
			Symptoms:    symptoms,
			Images:      images,
			VitalSigns:  vitals,
			RiskFactors: risk,
		},
		Recommendations: recommendations(s.urgency, risk.RequiresSpecialAttention),
		UrgencyLevel:    s.urgency,
		SuggestedTests:  suggestTests(s.differential.all(), vitals.Alerts),
		GeneratedAt:     a.opts.Now().UTC(),
	}
}

func recommendations(u Urgency, specialAttention bool) []string {
	tpl := recommendationTemplates[u]
	out := make([]string, 0, len(tpl)+1)
	out = append(out, tpl...)
	if specialAttention {
		out = append(out, coordinationAdvice)
	}
	return out
}

// suggestTests matches the test panels against every hypothesis considered,
// then adds the tests tied to each vital alert.
func suggestTests(hypotheses []string, alerts []VitalAlert) []string {
	tests := newOrderedSet()
	text := normalize(strings.Join(hypotheses, " "))
	for _, panel := range testPanels {
		if containsAny(text, panel.triggers) {
			tests.add(panel.tests...)
		}
	}
	for _, alert := range alerts {
		for i := range vitalRules {
			if vitalRules[i].alert == alert {
				tests.add(vitalRules[i].tests...)
			}
		}
	}
	if len(alerts) > 0 {
		tests.add(monitoringTest)
	}
	return tests.values()
}
