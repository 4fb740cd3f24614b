package notification

import (
	"context"

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

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const notificationCols = `id, user_id, type, title, message, link, is_read, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var link *string
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &link, &n.IsRead, &n.CreatedAt); err != nil {
		return nil, err
	}
	if link != nil {
		n.Link = *link
	}
	return &n, nil
}

func (s *storePG) Create(ctx context.Context, n *Notification) error {
	var link *string
	if n.Link != "" {
		link = &n.Link
	}
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO notification (id, user_id, type, title, message, link, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, link, n.IsRead, n.CreatedAt)
	return err
}

func (s *storePG) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	where := ` WHERE user_id = $1`
	if unreadOnly {
		where += ` AND NOT is_read`
	}

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notification`+where, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+notificationCols+` FROM notification`+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (s *storePG) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	return count, err
}

func (s *storePG) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE notification SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *storePG) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE notification SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *storePG) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`DELETE FROM notification WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
