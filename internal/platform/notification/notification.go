// Package notification stores in-app notifications for users and pushes each
// new one to the user's websocket topic.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Markitchi/Meda/internal/platform/websocket"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another user.
var ErrNotFound = errors.New("notification not found")

type Type string

const (
	TypeShare           Type = "share"
	TypeComment         Type = "comment"
	TypeMention         Type = "mention"
	TypeAnalysisReady   Type = "analysis_ready"
	TypeDiagnosisReady  Type = "diagnosis_ready"
	TypeUrgentDiagnosis Type = "urgent_diagnosis"
)

var validTypes = map[Type]bool{
	TypeShare: true, TypeComment: true, TypeMention: true,
	TypeAnalysisReady: true, TypeDiagnosisReady: true, TypeUrgentDiagnosis: true,
}

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Templates ──

// Template is the title and message pattern for one notification type.
// Placeholders use the {{key}} form.
type Template struct {
	Title   string
	Message string
	Link    string
}

// TemplateEngine renders notification text per type.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Type]Template
}

func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{templates: map[Type]Template{
		TypeShare: {
			Title:   "Consultation partagée",
			Message: "{{actor}} a partagé la consultation de {{patient}} avec vous.",
			Link:    "/consultations/{{consultation_id}}",
		},
		TypeComment: {
			Title:   "Nouveau commentaire",
			Message: "{{actor}} a commenté la consultation de {{patient}}.",
			Link:    "/consultations/{{consultation_id}}",
		},
		TypeMention: {
			Title:   "Vous avez été mentionné",
			Message: "{{actor}} vous a mentionné: {{excerpt}}",
			Link:    "/consultations/{{consultation_id}}",
		},
		TypeAnalysisReady: {
			Title:   "Analyse terminée",
			Message: "L'analyse de l'image {{filename}} est terminée (confiance {{confidence}}).",
			Link:    "/images/{{image_id}}",
		},
		TypeDiagnosisReady: {
			Title:   "Diagnostic disponible",
			Message: "Le diagnostic de {{patient}} est disponible.",
			Link:    "/diagnoses/{{diagnosis_id}}",
		},
		TypeUrgentDiagnosis: {
			Title:   "Diagnostic urgent",
			Message: "Le diagnostic de {{patient}} requiert une prise en charge urgente: {{summary}}",
			Link:    "/diagnoses/{{diagnosis_id}}",
		},
	}}
}

// Register adds or replaces the template for t.
func (e *TemplateEngine) Register(t Type, tpl Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t] = tpl
}

// Render substitutes data into the template for t. Placeholders without a
// value are left as they are.
func (e *TemplateEngine) Render(t Type, data map[string]string) (title, message, link string, err error) {
	e.mu.RLock()
	tpl, ok := e.templates[t]
	e.mu.RUnlock()
	if !ok {
		return "", "", "", fmt.Errorf("no template for notification type %q", t)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(tpl.Title), r.Replace(tpl.Message), r.Replace(tpl.Link), nil
}

// ── Manager ──

// Publisher receives every stored notification.
type Publisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

type Manager struct {
	store     Store
	templates *TemplateEngine
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewManager builds a manager. publisher may be nil.
func NewManager(store Store, templates *TemplateEngine, publisher Publisher, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		templates: templates,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify stores a notification and pushes it to the user. A push failure is
// logged and does not fail the call.
func (m *Manager) Notify(ctx context.Context, n *Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !validTypes[n.Type] {
		return fmt.Errorf("invalid notification type: %s", n.Type)
	}
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	n.ID = uuid.New()
	n.IsRead = false
	n.CreatedAt = m.now()

	if err := m.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	if m.publisher != nil {
		data, err := json.Marshal(n)
		if err == nil {
			err = m.publisher.Publish(ctx, websocket.Event{
				Type:      "notification",
				Topic:     websocket.UserTopic(n.UserID),
				Timestamp: n.CreatedAt,
				Data:      data,
			})
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("notification push failed")
		}
	}
	return nil
}

// NotifyTemplate renders the built-in template for t and stores the result.
func (m *Manager) NotifyTemplate(ctx context.Context, userID string, t Type, data map[string]string) (*Notification, error) {
	title, message, link, err := m.templates.Render(t, data)
	if err != nil {
		return nil, err
	}
	n := &Notification{UserID: userID, Type: t, Title: title, Message: message, Link: link}
	if err := m.Notify(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns the user's notifications, newest first.
func (m *Manager) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return m.store.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

func (m *Manager) UnreadCount(ctx context.Context, userID string) (int, error) {
	return m.store.UnreadCount(ctx, userID)
}

func (m *Manager) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	return m.store.MarkRead(ctx, userID, id)
}

// MarkAllRead returns how many notifications changed.
func (m *Manager) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return m.store.MarkAllRead(ctx, userID)
}

func (m *Manager) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	return m.store.Delete(ctx, userID, id)
}
