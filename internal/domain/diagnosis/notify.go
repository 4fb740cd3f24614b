package diagnosis

import (
	"context"

	"github.com/Markitchi/Meda/internal/platform/notification"
)

// TemplateSender delivers templated in-app notifications.
type TemplateSender interface {
	NotifyTemplate(ctx context.Context, userID string, t notification.Type, data map[string]string) (*notification.Notification, error)
}

type templateNotifier struct {
	sender TemplateSender
}

// NewTemplateNotifier sends urgent diagnoses as urgent_diagnosis
// notifications.
func NewTemplateNotifier(sender TemplateSender) Notifier {
	return &templateNotifier{sender: sender}
}

func (n *templateNotifier) NotifyUrgent(ctx context.Context, userID, patientName string, rec *Record) error {
	summary := ""
	if rec.Report != nil {
		summary = rec.Report.Diagnosis
	}
	_, err := n.sender.NotifyTemplate(ctx, userID, notification.TypeUrgentDiagnosis, map[string]string{
		"patient":      patientName,
		"summary":      summary,
		"diagnosis_id": rec.ID.String(),
	})
	return err
}
