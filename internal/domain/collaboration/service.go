package collaboration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Markitchi/Meda/internal/domain/consultation"
	"github.com/Markitchi/Meda/internal/platform/auth"
	"github.com/Markitchi/Meda/internal/platform/notification"
)

const (
	maxCommentLength = 5000
	excerptLength    = 80
)

// ConsultationLookup resolves a consultation and its owner.
type ConsultationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
}

type PatientLookup interface {
	PatientName(ctx context.Context, patientID uuid.UUID) (string, error)
}

// Notifier delivers templated in-app notifications.
type Notifier interface {
	NotifyTemplate(ctx context.Context, userID string, t notification.Type, data map[string]string) (*notification.Notification, error)
}

// Service shares consultations between users and keeps their discussion.
// The doctor who created a consultation owns it; admins act as owners.
type Service struct {
	shares        ShareRepository
	comments      CommentRepository
	audit         AuditLog
	consultations ConsultationLookup
	patients      PatientLookup
	notifier      Notifier
	logger        zerolog.Logger
}

func NewService(shares ShareRepository, comments CommentRepository, audit AuditLog,
	consultations ConsultationLookup, patients PatientLookup, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		shares:        shares,
		comments:      comments,
		audit:         audit,
		consultations: consultations,
		patients:      patients,
		notifier:      notifier,
		logger:        logger.With().Str("component", "collaboration").Logger(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func isAdmin(ctx context.Context) bool {
	return auth.HasRole(auth.RolesFromContext(ctx), auth.RoleAdmin)
}

// access loads the consultation and checks that userID holds at least need
// on it.
func (s *Service) access(ctx context.Context, id uuid.UUID, userID string, need Permission) (*consultation.Consultation, error) {
	c, err := s.consultations.GetByID(ctx, id)
	if errors.Is(err, consultation.ErrNotFound) {
		return nil, ErrConsultationNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.DoctorID == userID || isAdmin(ctx) {
		return c, nil
	}
	share, err := s.shares.Get(ctx, id, userID)
	if errors.Is(err, ErrShareNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if need == PermissionWrite && share.Permission != PermissionWrite {
		return nil, ErrForbidden
	}
	return c, nil
}

// ── Sharing ──

// Share grants target access to the consultation, or changes the
// permission of an existing share. Only a new share notifies target.
func (s *Service) Share(ctx context.Context, consultationID uuid.UUID, actor, target string, perm Permission) (*Share, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, invalid("user_id is required")
	}
	if perm == "" {
		perm = PermissionRead
	}
	if !perm.Valid() {
		return nil, invalid("permission must be read or write")
	}
	if target == actor {
		return nil, invalid("cannot share a consultation with yourself")
	}
	c, err := s.access(ctx, consultationID, actor, PermissionWrite)
	if err != nil {
		return nil, err
	}
	if target == c.DoctorID {
		return nil, invalid("the consultation owner already has access")
	}

	share := &Share{ConsultationID: consultationID, SharedBy: actor, SharedWith: target, Permission: perm}
	created, err := s.shares.Upsert(ctx, share)
	if err != nil {
		return nil, err
	}
	if created {
		s.notify(ctx, target, notification.TypeShare, s.templateData(ctx, c, actor))
	}
	return share, nil
}

func (s *Service) ListShares(ctx context.Context, consultationID uuid.UUID, actor string) ([]*Share, error) {
	if _, err := s.access(ctx, consultationID, actor, PermissionRead); err != nil {
		return nil, err
	}
	items, err := s.shares.ListByConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Share{}
	}
	return items, nil
}

// Revoke removes target's share. Users holding write may revoke anyone;
// any recipient may drop their own share.
func (s *Service) Revoke(ctx context.Context, consultationID uuid.UUID, actor, target string) error {
	need := PermissionWrite
	if target == actor {
		need = PermissionRead
	}
	if _, err := s.access(ctx, consultationID, actor, need); err != nil {
		return err
	}
	return s.shares.Delete(ctx, consultationID, target)
}

func (s *Service) SharedWith(ctx context.Context, userID string, limit, offset int) ([]*Share, int, error) {
	return s.shares.ListSharedWith(ctx, userID, limit, offset)
}

// ── Comments ──

// AddComment posts content on the consultation. The owner and every share
// recipient except the author are notified; those named with @user-id get a
// mention instead.
func (s *Service) AddComment(ctx context.Context, consultationID uuid.UUID, actor, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content is required")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, invalid("content exceeds %d characters", maxCommentLength)
	}
	c, err := s.access(ctx, consultationID, actor, PermissionRead)
	if err != nil {
		return nil, err
	}

	comment := &Comment{ConsultationID: consultationID, AuthorID: actor, Content: content}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	recipients := []string{c.DoctorID}
	shares, err := s.shares.ListByConsultation(ctx, consultationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("consultation_id", consultationID.String()).Msg("comment recipients unavailable")
	}
	for _, sh := range shares {
		recipients = append(recipients, sh.SharedWith)
	}

	mentioned := mentions(content)
	data := s.templateData(ctx, c, actor)
	data["excerpt"] = excerpt(content)
	seen := map[string]bool{actor: true}
	for _, r := range recipients {
		if seen[r] {
			continue
		}
		seen[r] = true
		t := notification.TypeComment
		if mentioned[r] {
			t = notification.TypeMention
		}
		s.notify(ctx, r, t, data)
	}
	return comment, nil
}

func (s *Service) ListComments(ctx context.Context, consultationID uuid.UUID, actor string, limit, offset int) ([]*Comment, int, error) {
	if _, err := s.access(ctx, consultationID, actor, PermissionRead); err != nil {
		return nil, 0, err
	}
	return s.comments.ListByConsultation(ctx, consultationID, limit, offset)
}

// DeleteComment removes a comment. Only its author or an admin may.
func (s *Service) DeleteComment(ctx context.Context, id uuid.UUID, actor string) error {
	c, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.AuthorID != actor && !isAdmin(ctx) {
		return ErrForbidden
	}
	return s.comments.Delete(ctx, id)
}

// ── Audit trail ──

// AuditTrail lists recorded requests, newest first. Non-admins only see
// their own.
func (s *Service) AuditTrail(ctx context.Context, actor string, f AuditFilter, limit, offset int) ([]*AuditEvent, int, error) {
	if !isAdmin(ctx) {
		f.UserID = actor
	}
	return s.audit.List(ctx, f, limit, offset)
}

// ── Helpers ──

func (s *Service) templateData(ctx context.Context, c *consultation.Consultation, actor string) map[string]string {
	name, err := s.patients.PatientName(ctx, c.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", c.PatientID.String()).Msg("patient name unavailable")
		name = "un patient"
	}
	return map[string]string{
		"actor":           actor,
		"patient":         name,
		"consultation_id": c.ID.String(),
	}
}

func (s *Service) notify(ctx context.Context, userID string, t notification.Type, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.NotifyTemplate(ctx, userID, t, data); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Str("type", string(t)).Msg("notification failed")
	}
}

// mentions returns the user ids written as @id in content.
func mentions(content string) map[string]bool {
	out := map[string]bool{}
	for _, word := range strings.Fields(content) {
		if !strings.HasPrefix(word, "@") {
			continue
		}
		id := strings.TrimRight(strings.TrimPrefix(word, "@"), ".,;:!?)")
		if id != "" {
			out[id] = true
		}
	}
	return out
}

func excerpt(content string) string {
	if utf8.RuneCountInString(content) <= excerptLength {
		return content
	}
	r := []rune(content)
	return string(r[:excerptLength]) + "…"
}
