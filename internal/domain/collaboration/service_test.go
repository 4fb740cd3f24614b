package collaboration

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Markitchi/Meda/internal/domain/consultation"
	"github.com/Markitchi/Meda/internal/platform/auth"
	"github.com/Markitchi/Meda/internal/platform/middleware"
	"github.com/Markitchi/Meda/internal/platform/notification"
)

// ── Mock Repositories ──

type mockShareRepo struct {
	store map[uuid.UUID]map[string]*Share
}

func newMockShareRepo() *mockShareRepo {
	return &mockShareRepo{store: make(map[uuid.UUID]map[string]*Share)}
}

func (m *mockShareRepo) Upsert(_ context.Context, s *Share) (bool, error) {
	byUser := m.store[s.ConsultationID]
	if byUser == nil {
		byUser = make(map[string]*Share)
		m.store[s.ConsultationID] = byUser
	}
	if existing, ok := byUser[s.SharedWith]; ok {
		existing.Permission = s.Permission
		existing.UpdatedAt = time.Now()
		*s = *existing
		return false, nil
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	byUser[s.SharedWith] = &cp
	return true, nil
}

func (m *mockShareRepo) Get(_ context.Context, consultationID uuid.UUID, userID string) (*Share, error) {
	s, ok := m.store[consultationID][userID]
	if !ok {
		return nil, ErrShareNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockShareRepo) Delete(_ context.Context, consultationID uuid.UUID, userID string) error {
	if _, ok := m.store[consultationID][userID]; !ok {
		return ErrShareNotFound
	}
	delete(m.store[consultationID], userID)
	return nil
}

func (m *mockShareRepo) ListByConsultation(_ context.Context, consultationID uuid.UUID) ([]*Share, error) {
	var out []*Share
	for _, s := range m.store[consultationID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SharedWith < out[j].SharedWith })
	return out, nil
}

func (m *mockShareRepo) ListSharedWith(_ context.Context, userID string, limit, offset int) ([]*Share, int, error) {
	var out []*Share
	for _, byUser := range m.store {
		if s, ok := byUser[userID]; ok {
			out = append(out, s)
		}
	}
	return page(out, limit, offset), len(out), nil
}

type mockCommentRepo struct {
	items []*Comment
}

func (m *mockCommentRepo) Create(_ context.Context, c *Comment) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockCommentRepo) GetByID(_ context.Context, id uuid.UUID) (*Comment, error) {
	for _, c := range m.items {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCommentNotFound
}

func (m *mockCommentRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, c := range m.items {
		if c.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return ErrCommentNotFound
}

func (m *mockCommentRepo) ListByConsultation(_ context.Context, consultationID uuid.UUID, limit, offset int) ([]*Comment, int, error) {
	var out []*Comment
	for _, c := range m.items {
		if c.ConsultationID == consultationID {
			out = append(out, c)
		}
	}
	return page(out, limit, offset), len(out), nil
}

type mockAuditLog struct {
	events []*AuditEvent
	last   AuditFilter
}

func (m *mockAuditLog) List(_ context.Context, f AuditFilter, limit, offset int) ([]*AuditEvent, int, error) {
	m.last = f
	var out []*AuditEvent
	for _, e := range m.events {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		out = append(out, e)
	}
	return page(out, limit, offset), len(out), nil
}

func page[T any](items []T, limit, offset int) []T {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end]
}

type mockConsultations struct {
	store map[uuid.UUID]*consultation.Consultation
}

func (m *mockConsultations) GetByID(_ context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, consultation.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type mockPatients struct{ name string }

func (m mockPatients) PatientName(_ context.Context, _ uuid.UUID) (string, error) {
	if m.name == "" {
		return "", errors.New("patient directory down")
	}
	return m.name, nil
}

type sent struct {
	userID string
	typ    notification.Type
	data   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recordingNotifier) NotifyTemplate(_ context.Context, userID string, t notification.Type, data map[string]string) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.sent = append(r.sent, sent{userID: userID, typ: t, data: data})
	return &notification.Notification{UserID: userID, Type: t}, nil
}

func (r *recordingNotifier) to(userID string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.sent {
		if s.userID == userID {
			out = append(out, s)
		}
	}
	return out
}

// ── Fixture ──

const owner = "doc-1"

type fixture struct {
	svc      *Service
	shares   *mockShareRepo
	comments *mockCommentRepo
	audit    *mockAuditLog
	notes    *recordingNotifier
	cons     *consultation.Consultation
}

func newFixture() *fixture {
	cons := &consultation.Consultation{ID: uuid.New(), PatientID: uuid.New(), DoctorID: owner, ChiefComplaint: "Toux"}
	f := &fixture{
		shares:   newMockShareRepo(),
		comments: &mockCommentRepo{},
		audit:    &mockAuditLog{},
		notes:    &recordingNotifier{},
		cons:     cons,
	}
	f.svc = NewService(f.shares, f.comments, f.audit,
		&mockConsultations{store: map[uuid.UUID]*consultation.Consultation{cons.ID: cons}},
		mockPatients{name: "Awa Diallo"}, f.notes, zerolog.Nop())
	return f
}

func as(userID string, roles ...string) context.Context {
	if len(roles) == 0 {
		roles = []string{auth.RoleDoctor}
	}
	return auth.WithUser(context.Background(), userID, roles)
}

func (f *fixture) mustShare(t *testing.T, target string, perm Permission) *Share {
	t.Helper()
	s, err := f.svc.Share(as(owner), f.cons.ID, owner, target, perm)
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	return s
}

// ── Sharing ──

func TestService_Share(t *testing.T) {
	f := newFixture()
	s := f.mustShare(t, "nurse-1", "")
	if s.Permission != PermissionRead || s.SharedBy != owner || s.ID == uuid.Nil {
		t.Errorf("unexpected share %+v", s)
	}
	got := f.notes.to("nurse-1")
	if len(got) != 1 || got[0].typ != notification.TypeShare {
		t.Fatalf("expected one share notification, got %+v", got)
	}
	if got[0].data["patient"] != "Awa Diallo" || got[0].data["actor"] != owner ||
		got[0].data["consultation_id"] != f.cons.ID.String() {
		t.Errorf("unexpected template data %v", got[0].data)
	}
}

func TestService_Share_UpdatesPermissionWithoutRenotifying(t *testing.T) {
	f := newFixture()
	first := f.mustShare(t, "rad-1", PermissionRead)
	second := f.mustShare(t, "rad-1", PermissionWrite)
	if second.ID != first.ID || second.Permission != PermissionWrite {
		t.Errorf("expected permission update on the same share, got %+v", second)
	}
	if n := len(f.notes.to("rad-1")); n != 1 {
		t.Errorf("expected a single notification, got %d", n)
	}
}

func TestService_Share_Errors(t *testing.T) {
	f := newFixture()
	f.mustShare(t, "reader", PermissionRead)
	f.mustShare(t, "writer", PermissionWrite)

	tests := []struct {
		name   string
		ctx    context.Context
		actor  string
		target string
		perm   Permission
		cons   uuid.UUID
		want   error
	}{
		{"blank target", as(owner), owner, "  ", "", f.cons.ID, ErrInvalid},
		{"bad permission", as(owner), owner, "x", "admin", f.cons.ID, ErrInvalid},
		{"self", as(owner), owner, owner, "", f.cons.ID, ErrInvalid},
		{"owner as target", as("writer"), "writer", owner, "", f.cons.ID, ErrInvalid},
		{"stranger", as("stranger"), "stranger", "x", "", f.cons.ID, ErrForbidden},
		{"read share cannot reshare", as("reader"), "reader", "x", "", f.cons.ID, ErrForbidden},
		{"unknown consultation", as(owner), owner, "x", "", uuid.New(), ErrConsultationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Share(tt.ctx, tt.cons, tt.actor, tt.target, tt.perm); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.svc.Share(as("writer"), f.cons.ID, "writer", "nurse-2", PermissionRead); err != nil {
		t.Errorf("expected write share to allow resharing, got %v", err)
	}
	if _, err := f.svc.Share(as("admin-1", auth.RoleAdmin), f.cons.ID, "admin-1", "nurse-3", PermissionRead); err != nil {
		t.Errorf("expected admin to share any consultation, got %v", err)
	}
}

func TestService_ListShares(t *testing.T) {
	f := newFixture()
	items, err := f.svc.ListShares(as(owner), f.cons.ID, owner)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil list, got %v", items)
	}

	f.mustShare(t, "nurse-1", PermissionRead)
	items, err = f.svc.ListShares(as("nurse-1"), f.cons.ID, "nurse-1")
	if err != nil {
		t.Fatalf("ListShares as recipient: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 share, got %d", len(items))
	}
	if _, err := f.svc.ListShares(as("stranger"), f.cons.ID, "stranger"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestService_Revoke(t *testing.T) {
	f := newFixture()
	f.mustShare(t, "reader", PermissionRead)
	f.mustShare(t, "other", PermissionRead)

	if err := f.svc.Revoke(as("reader"), f.cons.ID, "reader", "other"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected read share to be unable to revoke others, got %v", err)
	}
	if err := f.svc.Revoke(as("reader"), f.cons.ID, "reader", "reader"); err != nil {
		t.Errorf("expected recipient to drop own share, got %v", err)
	}
	if err := f.svc.Revoke(as(owner), f.cons.ID, owner, "other"); err != nil {
		t.Errorf("expected owner to revoke, got %v", err)
	}
	if err := f.svc.Revoke(as(owner), f.cons.ID, owner, "other"); !errors.Is(err, ErrShareNotFound) {
		t.Errorf("expected ErrShareNotFound, got %v", err)
	}
	if _, _, err := f.svc.ListComments(as("other"), f.cons.ID, "other", 10, 0); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected revoked user to lose access, got %v", err)
	}
}

func TestService_SharedWith(t *testing.T) {
	f := newFixture()
	f.mustShare(t, "nurse-1", PermissionRead)
	items, total, err := f.svc.SharedWith(context.Background(), "nurse-1", 10, 0)
	if err != nil {
		t.Fatalf("SharedWith: %v", err)
	}
	if total != 1 || items[0].ConsultationID != f.cons.ID {
		t.Errorf("unexpected shares %v (total %d)", items, total)
	}
}

// ── Comments ──

func TestService_AddComment_NotifiesCollaborators(t *testing.T) {
	f := newFixture()
	f.mustShare(t, "nurse-1", PermissionRead)
	f.mustShare(t, "rad-1", PermissionRead)
	f.notes.sent = nil

	c, err := f.svc.AddComment(as("nurse-1"), f.cons.ID, "nurse-1", "  Saturation en baisse, avis @rad-1? ")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c.Content != "Saturation en baisse, avis @rad-1?" || c.AuthorID != "nurse-1" {
		t.Errorf("unexpected comment %+v", c)
	}

	if got := f.notes.to(owner); len(got) != 1 || got[0].typ != notification.TypeComment {
		t.Errorf("expected owner comment notification, got %+v", got)
	}
	got := f.notes.to("rad-1")
	if len(got) != 1 || got[0].typ != notification.TypeMention {
		t.Fatalf("expected mention for rad-1, got %+v", got)
	}
	if got[0].data["excerpt"] != c.Content {
		t.Errorf("expected excerpt %q, got %q", c.Content, got[0].data["excerpt"])
	}
	if n := len(f.notes.to("nurse-1")); n != 0 {
		t.Errorf("expected author not to be notified, got %d", n)
	}
}

func TestService_AddComment_MentionWithoutAccessIgnored(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.AddComment(as(owner), f.cons.ID, owner, "cc @outsider"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if n := len(f.notes.to("outsider")); n != 0 {
		t.Errorf("expected no notification for a user without access, got %d", n)
	}
}

func TestService_AddComment_NotificationFailureIgnored(t *testing.T) {
	f := newFixture()
	f.mustShare(t, "nurse-1", PermissionRead)
	f.notes.err = errors.New("hub closed")
	if _, err := f.svc.AddComment(as(owner), f.cons.ID, owner, "RAS"); err != nil {
		t.Errorf("expected comment to be stored despite notification failure, got %v", err)
	}
}

func TestService_AddComment_Errors(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name    string
		actor   string
		content string
		want    error
	}{
		{"blank", owner, "   ", ErrInvalid},
		{"too long", owner, strings.Repeat("é", maxCommentLength+1), ErrInvalid},
		{"stranger", "stranger", "bonjour", ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.AddComment(as(tt.actor), f.cons.ID, tt.actor, tt.content); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.comments.items) != 0 {
		t.Errorf("expected nothing stored, got %d comments", len(f.comments.items))
	}
}

func TestService_ListComments(t *testing.T) {
	f := newFixture()
	for _, text := range []string{"un", "deux", "trois"} {
		if _, err := f.svc.AddComment(as(owner), f.cons.ID, owner, text); err != nil {
			t.Fatal(err)
		}
	}
	items, total, err := f.svc.ListComments(as(owner), f.cons.ID, owner, 2, 1)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].Content != "deux" {
		t.Errorf("unexpected page %v (total %d)", items, total)
	}
}

func TestService_DeleteComment(t *testing.T) {
	f := newFixture()
	f.mustShare(t, "nurse-1", PermissionWrite)
	c, err := f.svc.AddComment(as(owner), f.cons.ID, owner, "à supprimer")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteComment(as("nurse-1"), c.ID, "nurse-1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected only the author to delete, got %v", err)
	}
	if err := f.svc.DeleteComment(as("admin-1", auth.RoleAdmin), c.ID, "admin-1"); err != nil {
		t.Errorf("expected admin to delete, got %v", err)
	}
	if err := f.svc.DeleteComment(as(owner), c.ID, owner); !errors.Is(err, ErrCommentNotFound) {
		t.Errorf("expected ErrCommentNotFound, got %v", err)
	}
}

// ── Audit trail ──

func TestService_AuditTrail(t *testing.T) {
	f := newFixture()
	f.audit.events = []*AuditEvent{
		{ID: 2, AuditEntry: middleware.AuditEntry{UserID: "nurse-1", Resource: "patients"}},
		{ID: 1, AuditEntry: middleware.AuditEntry{UserID: owner, Resource: "consultations"}},
	}

	items, total, err := f.svc.AuditTrail(as("nurse-1", auth.RoleNurse), "nurse-1", AuditFilter{UserID: owner}, 10, 0)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if f.audit.last.UserID != "nurse-1" || total != 1 || items[0].ID != 2 {
		t.Errorf("expected non-admin to see only own events, got %v (filter %+v)", items, f.audit.last)
	}

	_, total, err = f.svc.AuditTrail(as("admin-1", auth.RoleAdmin), "admin-1", AuditFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("AuditTrail as admin: %v", err)
	}
	if total != 2 {
		t.Errorf("expected admin to see all events, got %d", total)
	}
}

func TestMentions(t *testing.T) {
	got := mentions("@rad-1, merci. Voir aussi @doc-2! et a@b")
	if !got["rad-1"] || !got["doc-2"] || len(got) != 2 {
		t.Errorf("unexpected mentions %v", got)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("é", excerptLength+5)
	if got := excerpt(long); !strings.HasSuffix(got, "…") || len([]rune(got)) != excerptLength+1 {
		t.Errorf("unexpected excerpt %q", got)
	}
	if excerpt("court") != "court" {
		t.Error("expected short content to be kept")
	}
}

func TestService_Share_RendersInAppNotification(t *testing.T) {
	f := newFixture()
	m := notification.NewManager(notification.NewMemoryStore(), notification.NewTemplateEngine(), nil, zerolog.Nop())
	f.svc.notifier = m

	f.mustShare(t, "nurse-1", PermissionRead)
	if _, err := f.svc.AddComment(as(owner), f.cons.ID, owner, "@nurse-1 merci de reprendre la tension"); err != nil {
		t.Fatal(err)
	}

	items, total, err := m.List(context.Background(), "nurse-1", false, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("expected share and mention notifications, got %d", total)
	}
	for _, n := range items {
		if n.Link != "/consultations/"+f.cons.ID.String() {
			t.Errorf("unexpected link %q", n.Link)
		}
		if n.Type == notification.TypeShare && !strings.Contains(n.Message, "Awa Diallo") {
			t.Errorf("expected patient name in %q", n.Message)
		}
		if strings.Contains(n.Message, "{{") {
			t.Errorf("unrendered placeholder in %q", n.Message)
		}
	}
}
