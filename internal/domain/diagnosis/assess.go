package diagnosis

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize lower-cases and composes s so that "Fièvre" typed with a
// combining accent still matches "fièvre".
func normalize(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

func upper(s string) string {
	return strings.ToUpper(norm.NFC.String(s))
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ── Vital readings ──

func positive(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0 {
		return 0, false
	}
	return *p, true
}

func temperature(v VitalSigns) (float64, bool) { return positive(v.Temperature) }
func heartRate(v VitalSigns) (float64, bool)   { return positive(v.HeartRate) }

func oxygenSaturation(v VitalSigns) (float64, bool) {
	s, ok := positive(v.OxygenSaturation)
	if !ok || s > 100 {
		return 0, false
	}
	return s, true
}

func copyReading(p *float64) *float64 {
	v, ok := positive(p)
	if !ok {
		return nil
	}
	return &v
}

// sanitizeVitals copies the readings that are usable. Absent and implausible
// values are left nil.
func sanitizeVitals(v VitalSigns) VitalSigns {
	out := VitalSigns{
		Temperature:     copyReading(v.Temperature),
		HeartRate:       copyReading(v.HeartRate),
		RespiratoryRate: copyReading(v.RespiratoryRate),
		Weight:          copyReading(v.Weight),
		Height:          copyReading(v.Height),
	}
	if s, ok := oxygenSaturation(v); ok {
		out.OxygenSaturation = &s
	}
	if v.BloodPressure != nil {
		if bp := strings.TrimSpace(*v.BloodPressure); bp != "" {
			out.BloodPressure = &bp
		}
	}
	return out
}

// ── Image findings ──

func (p Pathology) valid() bool {
	if strings.TrimSpace(p.Name) == "" || math.IsNaN(p.Probability) || p.Probability < 0 || p.Probability > 1 {
		return false
	}
	return p.Severity == "" || p.Severity.Valid()
}

func percent(p float64) int {
	return int(math.Round(p * 100))
}

// sanitizeImages copies the findings, dropping pathologies that cannot be
// interpreted and zeroing a non-finite confidence.
func sanitizeImages(images []ImageFinding) []ImageFinding {
	out := make([]ImageFinding, 0, len(images))
	for _, img := range images {
		cp := img
		cp.Pathologies = make([]Pathology, 0, len(img.Pathologies))
		for _, p := range img.Pathologies {
			if p.valid() {
				cp.Pathologies = append(cp.Pathologies, p)
			}
		}
		if math.IsNaN(cp.Confidence) || math.IsInf(cp.Confidence, 0) {
			cp.Confidence = 0
		}
		out = append(out, cp)
	}
	return out
}

// ── Assessments ──

// assessSymptoms reports the list as submitted; blank entries count toward
// severity but never match a category.
func assessSymptoms(symptoms []string) SymptomAssessment {
	reported := append(make([]string, 0, len(symptoms)), symptoms...)
	conditions := newOrderedSet()
	for _, s := range symptoms {
		if strings.TrimSpace(s) == "" {
			continue
		}
		text := normalize(s)
		for _, entry := range symptomCategories {
			if containsAny(text, entry.keywords) {
				conditions.add(entry.categories...)
			}
		}
	}

	severity := SymptomsMild
	if len(reported) > 3 {
		severity = SymptomsModerate
	}
	return SymptomAssessment{
		ReportedSymptoms:   reported,
		PossibleConditions: conditions.values(),
		Severity:           severity,
	}
}

func assessRisk(history []ConditionRecord) RiskAssessment {
	active := []string{}
	chronic := []string{}
	for _, h := range history {
		name := strings.TrimSpace(h.Condition)
		if name == "" {
			continue
		}
		switch ConditionStatus(normalize(string(h.Status))) {
		case StatusActive:
			active = append(active, name)
		case StatusChronic:
			chronic = append(chronic, name)
		}
	}

	joined := normalize(strings.Join(append(append([]string{}, active...), chronic...), " "))
	level := RiskLow
	switch {
	case containsAny(joined, highRiskTerms):
		level = RiskHigh
	case len(active) > 2:
		level = RiskModerate
	}
	return RiskAssessment{
		ActiveConditions:         active,
		ChronicConditions:        chronic,
		RiskLevel:                level,
		RequiresSpecialAttention: level == RiskHigh,
	}
}

// vitalHit is a breached rule with the reading that breached it.
type vitalHit struct {
	rule  *vitalRule
	value float64
}

func assessVitals(v VitalSigns) (VitalAssessment, []vitalHit) {
	alerts := []VitalAlert{}
	var hits []vitalHit
	for i := range vitalRules {
		r := &vitalRules[i]
		value, ok := r.reading(v)
		if !ok || !r.breach(value) {
			continue
		}
		alerts = append(alerts, r.alert)
		hits = append(hits, vitalHit{rule: r, value: value})
	}

	status := VitalsWarning
	switch {
	case len(alerts) == 0:
		status = VitalsNormal
	case len(alerts) > 2:
		status = VitalsCritical
	}
	return VitalAssessment{VitalSigns: sanitizeVitals(v), Alerts: alerts, Status: status}, hits
}
