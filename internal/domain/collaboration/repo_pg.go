package collaboration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Markitchi/Meda/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// ── Shares ──

type shareRepoPG struct{ pool *pgxpool.Pool }

func NewShareRepoPG(pool *pgxpool.Pool) ShareRepository {
	return &shareRepoPG{pool: pool}
}

const shareCols = `id, consultation_id, shared_by, shared_with, permission, created_at, updated_at`

func scanShare(row pgx.Row) (*Share, error) {
	var s Share
	err := row.Scan(&s.ID, &s.ConsultationID, &s.SharedBy, &s.SharedWith, &s.Permission, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shareRepoPG) Upsert(ctx context.Context, s *Share) (bool, error) {
	id := uuid.New()
	// xmax is zero only for a freshly inserted row.
	var created bool
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultation_share (id, consultation_id, shared_by, shared_with, permission)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (consultation_id, shared_with)
		DO UPDATE SET permission = EXCLUDED.permission, updated_at = NOW()
		RETURNING id, shared_by, created_at, updated_at, (xmax = 0)`,
		id, s.ConsultationID, s.SharedBy, s.SharedWith, s.Permission,
	).Scan(&s.ID, &s.SharedBy, &s.CreatedAt, &s.UpdatedAt, &created)
	return created, err
}

func (r *shareRepoPG) Get(ctx context.Context, consultationID uuid.UUID, userID string) (*Share, error) {
	return scanShare(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+shareCols+` FROM consultation_share WHERE consultation_id = $1 AND shared_with = $2`,
		consultationID, userID))
}

func (r *shareRepoPG) Delete(ctx context.Context, consultationID uuid.UUID, userID string) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`DELETE FROM consultation_share WHERE consultation_id = $1 AND shared_with = $2`, consultationID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShareNotFound
	}
	return nil
}

func (r *shareRepoPG) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*Share, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+shareCols+` FROM consultation_share WHERE consultation_id = $1 ORDER BY created_at`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *shareRepoPG) ListSharedWith(ctx context.Context, userID string, limit, offset int) ([]*Share, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation_share WHERE shared_with = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+shareCols+` FROM consultation_share WHERE shared_with = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// ── Comments ──

type commentRepoPG struct{ pool *pgxpool.Pool }

func NewCommentRepoPG(pool *pgxpool.Pool) CommentRepository {
	return &commentRepoPG{pool: pool}
}

const commentCols = `id, consultation_id, author_id, content, created_at, updated_at`

func scanComment(row pgx.Row) (*Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.ConsultationID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *commentRepoPG) Create(ctx context.Context, c *Comment) error {
	c.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultation_comment (id, consultation_id, author_id, content)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		c.ID, c.ConsultationID, c.AuthorID, c.Content,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *commentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	return scanComment(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+commentCols+` FROM consultation_comment WHERE id = $1`, id))
}

func (r *commentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM consultation_comment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func (r *commentRepoPG) ListByConsultation(ctx context.Context, consultationID uuid.UUID, limit, offset int) ([]*Comment, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation_comment WHERE consultation_id = $1`, consultationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+commentCols+` FROM consultation_comment
		WHERE consultation_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`, consultationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// ── Audit trail ──

type auditLogPG struct{ pool *pgxpool.Pool }

// NewAuditLogPG reads the audit_event table.
func NewAuditLogPG(pool *pgxpool.Pool) AuditLog {
	return &auditLogPG{pool: pool}
}

const auditCols = `id, user_id, user_roles, resource, COALESCE(resource_id, ''), COALESCE(patient_id, ''),
	action, method, path, COALESCE(ip_address, ''), COALESCE(user_agent, ''), status_code,
	COALESCE(request_id, ''), occurred_at`

func (r *auditLogPG) List(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditEvent, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM audit_event`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM audit_event%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		auditCols, clause, len(args)-1, len(args))
	rows, err := connFor(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserRoles, &e.Resource, &e.ResourceID, &e.PatientID,
			&e.Action, &e.Method, &e.Path, &e.IPAddress, &e.UserAgent, &e.StatusCode,
			&e.RequestID, &e.Timestamp); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
