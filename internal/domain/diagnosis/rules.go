package diagnosis

import (
	"fmt"
	"strconv"
)

// Clinical vocabulary used by the aggregator. Every keyword is matched as a
// substring of the normalized (lower-cased, NFC) input.

const (
	fallbackDiagnosis     = "Évaluation clinique complète nécessaire"
	comorbidityHypothesis = "Complications liées aux comorbidités"
	defaultBodyPart       = "non spécifié"
	detailsHeader         = "\n\nDétails cliniques:\n"
	monitoringTest        = "Surveillance continue: TA, FC, FR, SpO2, T°C toutes les 4h"
	coordinationAdvice    = "[IMPORTANT] Coordination avec médecin traitant pour gestion des comorbidités"
)

// symptomCategories feeds the advisory symptom assessment.
var symptomCategories = []struct {
	keywords   []string
	categories []string
}{
	{[]string{"fièvre", "fievre", "fever"}, []string{"infection", "inflammation"}},
	{[]string{"toux", "cough"}, []string{"infection respiratoire", "allergie"}},
	{[]string{"douleur thoracique", "chest pain"}, []string{"problème cardiaque", "problème pulmonaire"}},
	{[]string{"essoufflement", "shortness of breath"}, []string{"problème cardiaque", "problème pulmonaire"}},
	{[]string{"maux de tête", "mal de tête", "headache"}, []string{"migraine", "tension", "hypertension"}},
	{[]string{"fatigue"}, []string{"anémie", "infection", "stress"}},
	{[]string{"nausée", "nausee", "nausea"}, []string{"problème digestif", "infection"}},
}

// symptomRule matches when every group has at least one keyword present.
// Rules are tried in order and the first match wins for a symptom.
type symptomRule struct {
	match      [][]string
	hypotheses []string
	detail     string
	urgency    Urgency
}

var symptomRules = []symptomRule{
	{
		match: [][]string{{"douleur", "pain"}, {"thoracique", "poitrine", "chest"}},
		hypotheses: []string{
			"Angine de poitrine (angor)",
			"Infarctus du myocarde (à exclure)",
			"Péricardite",
			"Embolie pulmonaire",
			"Reflux gastro-œsophagien",
		},
		detail: "• Douleur thoracique: Nécessite évaluation cardiaque urgente. " +
			"Caractériser: intensité (0-10), irradiation, facteurs déclenchants, durée.",
		urgency: UrgencyUrgent,
	},
	{
		match: [][]string{{"douleur", "pain"}, {"abdominal"}},
		hypotheses: []string{
			"Gastrite/Ulcère gastrique",
			"Appendicite (si douleur FID)",
			"Cholécystite",
			"Pancréatite",
		},
		detail: "• Douleur abdominale: Localisation précise nécessaire. " +
			"Signes associés: défense, rebond, Murphy, McBurney à vérifier.",
	},
	{
		match: [][]string{{"fièvre", "fievre", "fever"}},
		hypotheses: []string{
			"Infection bactérienne (à documenter)",
			"Infection virale",
			"Processus inflammatoire",
		},
		detail: "• Fièvre: Température exacte, courbe thermique, frissons, sueurs nocturnes à documenter. " +
			"Foyer infectieux à rechercher (ORL, pulmonaire, urinaire, cutané).",
	},
	{
		match: [][]string{{"essoufflement", "dyspnée", "dyspnee", "dyspnea", "shortness of breath"}},
		hypotheses: []string{
			"Insuffisance cardiaque congestive",
			"Asthme/BPCO",
			"Pneumonie",
			"Anémie sévère",
		},
		detail: "• Dyspnée: Classifier selon NYHA ou mMRC. " +
			"Orthopnée, DPN, œdèmes des membres inférieurs à rechercher. " +
			"SpO2 et gaz du sang si < 92%.",
	},
	{
		match: [][]string{{"toux", "cough"}},
		hypotheses: []string{
			"Bronchite aiguë",
			"Pneumonie communautaire",
			"Tuberculose (si chronique)",
			"Insuffisance cardiaque gauche",
		},
		detail: "• Toux: Caractériser - sèche/productive, expectorations (aspect, volume), " +
			"hémoptysie, durée. Auscultation pulmonaire détaillée nécessaire.",
	},
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// vitalRule describes one threshold breach. reading returns false when the
// value is absent or implausible.
type vitalRule struct {
	alert   VitalAlert
	reading func(VitalSigns) (float64, bool)
	breach  func(float64) bool
	detail  func(float64) string
	urgency func(float64) Urgency
	tests   []string
}

func routine(float64) Urgency { return UrgencyRoutine }

var vitalRules = []vitalRule{
	{
		alert:   AlertHighFever,
		reading: temperature,
		breach:  func(t float64) bool { return t > 38.5 },
		detail: func(t float64) string {
			hint := "Fièvre modérée (38-39°C)"
			if t > 39 {
				hint = "Fièvre élevée (>39°C) - antipyrétiques et hémocultures recommandés"
			}
			return fmt.Sprintf("• Hyperthermie: %s°C. %s.", formatNumber(t), hint)
		},
		urgency: func(t float64) Urgency {
			if t > 39 {
				return UrgencyPriority
			}
			return UrgencyRoutine
		},
		tests: []string{"Hémocultures si fièvre > 38.5°C"},
	},
	{
		alert:   AlertHypothermia,
		reading: temperature,
		breach:  func(t float64) bool { return t < 36.0 },
		detail: func(t float64) string {
			return fmt.Sprintf("• Hypothermie: %s°C. Réchauffement progressif, rechercher exposition, sepsis ou hypothyroïdie.",
				formatNumber(t))
		},
		urgency: routine,
	},
	{
		alert:   AlertTachycardia,
		reading: heartRate,
		breach:  func(hr float64) bool { return hr > 100 },
		detail: func(hr float64) string {
			return fmt.Sprintf("• Tachycardie: %s bpm. "+
				"Causes à explorer: fièvre, déshydratation, anémie, hyperthyroïdie, anxiété, arythmie. "+
				"ECG recommandé.", formatNumber(hr))
		},
		urgency: routine,
		tests:   []string{"ECG 12 dérivations"},
	},
	{
		alert:   AlertBradycardia,
		reading: heartRate,
		breach:  func(hr float64) bool { return hr < 60 },
		detail: func(hr float64) string {
			return fmt.Sprintf("• Bradycardie: %s bpm. "+
				"Vérifier les traitements bradycardisants et rechercher un trouble conductif. ECG recommandé.",
				formatNumber(hr))
		},
		urgency: routine,
		tests:   []string{"ECG 12 dérivations"},
	},
	{
		alert:   AlertLowOxygenSat,
		reading: oxygenSaturation,
		breach:  func(s float64) bool { return s < 95 },
		detail: func(s float64) string {
			hint := "Surveillance rapprochée"
			if s < 90 {
				hint = "Oxygénothérapie immédiate si < 90%"
			}
			return fmt.Sprintf("• Hypoxémie: SpO2 %s%%. %s. Gaz du sang artériel recommandés.", formatNumber(s), hint)
		},
		urgency: func(s float64) Urgency {
			if s < 90 {
				return UrgencyUrgent
			}
			return UrgencyPriority
		},
		tests: []string{"Gaz du sang artériel si SpO2 < 92%"},
	},
}

// highRiskTerms marks a history as high risk when found in any active or
// chronic condition.
var highRiskTerms = []string{
	"diabète", "diabete", "diabetes",
	"hypertension",
	"maladie cardiaque", "heart disease",
	"cancer",
}

var severityLabels = map[Severity]string{
	SeverityNormal:   "normale",
	SeverityMild:     "légère",
	SeverityModerate: "modérée",
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// imageDetail renders the detail line for a qualifying pathology using the
// vocabulary of the modality.
func imageDetail(t ImageType, bodyPart string, p Pathology, pct int) string {
	switch t {
	case ImageRetinal:
		return fmt.Sprintf("• Rétine (%s): %s détecté avec %d%% de confiance. Zones affectées: %s. Sévérité estimée: %s.",
			bodyPart, p.Name, pct, orDefault(p.Location, "multiples zones"), orDefault(severityLabels[p.Severity], "modérée"))
	case ImageXRay:
		return fmt.Sprintf("• Radiographie (%s): Anomalie détectée - %s. Localisation: %s. Densité: %s. Taille estimée: %s.",
			bodyPart, p.Name, orDefault(p.Location, "zone centrale"), orDefault(p.Density, "normale à augmentée"),
			orDefault(p.Size, "< 2cm"))
	case ImageCT:
		return fmt.Sprintf("• Scanner (%s): %s identifié. Dimensions: %s. Densité Hounsfield: %s. Extension: %s.",
			bodyPart, p.Name, orDefault(p.Dimensions, "non mesurées"), orDefault(p.HUValue, "non calculée"),
			orDefault(p.Extent, "localisée"))
	default:
		modality := "IMAGERIE"
		if t != "" {
			modality = upper(string(t))
		}
		return fmt.Sprintf("• %s (%s): %s observé. Caractéristiques: %s.",
			modality, bodyPart, p.Name, orDefault(p.Characteristics, "à préciser"))
	}
}

// testPanel is added when any trigger appears in the differential text.
type testPanel struct {
	triggers []string
	tests    []string
}

var testPanels = []testPanel{
	{
		triggers: []string{"infection", "fièvre", "inflammatoire"},
		tests: []string{
			"NFS avec formule leucocytaire",
			"CRP, VS",
			"Hémocultures si fièvre > 38.5°C",
			"ECBU si suspicion urinaire",
		},
	},
	{
		triggers: []string{"cardiaque", "thoracique", "myocarde", "angine", "angor", "péricardite"},
		tests: []string{
			"ECG 12 dérivations",
			"Troponine Ic (si douleur thoracique)",
			"BNP/NT-proBNP (si dyspnée)",
			"Échocardiographie transthoracique",
			"Radiographie thoracique",
		},
	},
	{
		triggers: []string{"pulmonaire", "toux", "pneumonie", "bronch"},
		tests: []string{
			"Radiographie thoracique (face + profil)",
			"Gaz du sang artériel si SpO2 < 92%",
			"Spirométrie si BPCO suspecté",
		},
	},
}

var recommendationTemplates = map[Urgency][]string{
	UrgencyUrgent: {
		"[URGENCE] Consultation médicale IMMÉDIATE (< 2h)",
		"Surveillance continue des constantes vitales",
		"Accès veineux et bilan biologique en urgence",
	},
	UrgencyPriority: {
		"[PRIORITAIRE] Consultation médicale dans les 24-48h",
		"Surveillance régulière des symptômes",
		"Repos et hydratation",
	},
	UrgencyRoutine: {
		"[ROUTINE] Suivi médical de routine dans les 7-14 jours",
		"Surveillance de l'évolution des symptômes",
		"Mesures hygiéno-diététiques",
	},
}
