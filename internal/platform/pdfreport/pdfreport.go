// Package pdfreport renders diagnosis reports as A4 PDF documents.
package pdfreport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"github.com/Markitchi/Meda/internal/domain/diagnosis"
)

const (
	fontFamily  = "DejaVu"
	marginLeft  = 40.0
	marginTop   = 40.0
	textWidth   = 515.0
	pageBottom  = 800.0
	lineHeight  = 14.0
	dateLayout  = "02/01/2006 15:04"
	emptyMarker = "Aucun"
)

// DefaultFontPaths are tried in order when no font is configured.
var DefaultFontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
}

var ErrNoFont = errors.New("no usable TTF font found")

var urgencyLabels = map[diagnosis.Urgency]string{
	diagnosis.UrgencyRoutine:  "Routine",
	diagnosis.UrgencyPriority: "Prioritaire",
	diagnosis.UrgencyUrgent:   "Urgent",
}

type Renderer struct {
	fontPath string
	now      func() time.Time
}

// NewRenderer uses fontPath when set, otherwise the first existing entry of
// DefaultFontPaths.
func NewRenderer(fontPath string) (*Renderer, error) {
	path, err := FindFont(fontPath)
	if err != nil {
		return nil, err
	}
	return &Renderer{fontPath: path, now: time.Now}, nil
}

func FindFont(configured string) (string, error) {
	candidates := DefaultFontPaths
	if configured != "" {
		candidates = []string{configured}
	}
	for _, p := range candidates {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	if configured != "" {
		return "", fmt.Errorf("%w: %s", ErrNoFont, configured)
	}
	return "", ErrNoFont
}

type document struct {
	pdf *gopdf.GoPdf
	err error
}

func (d *document) font(size float64) {
	if d.err == nil {
		d.err = d.pdf.SetFont(fontFamily, "", size)
	}
}

func (d *document) newLine(h float64) {
	d.pdf.Br(h)
	if d.pdf.GetY() > pageBottom {
		d.pdf.AddPage()
		d.pdf.SetY(marginTop)
	}
	d.pdf.SetX(marginLeft)
}

func (d *document) text(s string) {
	for _, para := range strings.Split(s, "\n") {
		if strings.TrimSpace(para) == "" {
			d.newLine(lineHeight / 2)
			continue
		}
		lines, err := d.pdf.SplitText(para, textWidth)
		if err != nil {
			lines = []string{para}
		}
		for _, l := range lines {
			if d.err == nil {
				d.err = d.pdf.Cell(nil, l)
			}
			d.newLine(lineHeight)
		}
	}
}

func (d *document) heading(s string) {
	d.newLine(8)
	d.font(14)
	d.text(s)
	d.font(11)
}

func (d *document) list(items []string) {
	if len(items) == 0 {
		d.text("- " + emptyMarker)
		return
	}
	for _, it := range items {
		d.text("- " + it)
	}
}

// Render writes rec as a PDF to w.
func (r *Renderer) Render(w io.Writer, patientName string, rec *diagnosis.Record) error {
	if rec == nil || rec.Report == nil {
		return errors.New("diagnosis has no report")
	}
	rep := rec.Report

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()
	if err := pdf.AddTTFFont(fontFamily, r.fontPath); err != nil {
		return fmt.Errorf("load font %s: %w", r.fontPath, err)
	}
	d := &document{pdf: pdf}
	pdf.SetX(marginLeft)
	pdf.SetY(marginTop)

	d.font(20)
	d.text("Rapport de diagnostic")
	d.newLine(6)

	d.font(11)
	generated := rep.GeneratedAt
	if generated.IsZero() {
		generated = r.now()
	}
	if patientName == "" {
		patientName = rec.PatientID.String()
	}
	d.text(fmt.Sprintf("Date: %s", generated.Format(dateLayout)))
	d.text(fmt.Sprintf("Patient: %s", patientName))
	d.text(fmt.Sprintf("Urgence: %s", urgencyLabel(rep.UrgencyLevel)))
	d.text(fmt.Sprintf("Confiance: %.0f%%", rep.ConfidenceScore*100))

	d.heading("Diagnostic principal")
	d.text(rep.Diagnosis)

	d.heading("Diagnostics différentiels")
	d.list(rep.DifferentialDiagnoses)

	d.heading("Recommandations")
	d.list(rep.Recommendations)

	d.heading("Examens suggérés")
	d.list(rep.SuggestedTests)

	d.newLine(lineHeight)
	d.font(9)
	d.text(fmt.Sprintf("Référence: %s", rec.ID))

	if d.err != nil {
		return fmt.Errorf("render pdf: %w", d.err)
	}
	if _, err := pdf.WriteTo(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func urgencyLabel(u diagnosis.Urgency) string {
	if l, ok := urgencyLabels[u]; ok {
		return l
	}
	return u.String()
}
