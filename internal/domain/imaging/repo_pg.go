package imaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

// -- Medical Image --

type imageRepoPG struct{ pool *pgxpool.Pool }

func NewImageRepoPG(pool *pgxpool.Pool) ImageRepository {
	return &imageRepoPG{pool: pool}
}

const imageCols = `id, filename, original_filename, object_key, file_size, mime_type, image_type,
	modality, body_part, analysis_status, confidence_score, user_id, patient_id,
	created_at, updated_at, analyzed_at`

func scanImage(row pgx.Row) (*MedicalImage, error) {
	var m MedicalImage
	err := row.Scan(&m.ID, &m.Filename, &m.OriginalFilename, &m.ObjectKey, &m.FileSize, &m.MimeType, &m.ImageType,
		&m.Modality, &m.BodyPart, &m.AnalysisStatus, &m.ConfidenceScore, &m.UserID, &m.PatientID,
		&m.CreatedAt, &m.UpdatedAt, &m.AnalyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *imageRepoPG) Create(ctx context.Context, m *MedicalImage) error {
	m.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_image (id, filename, original_filename, object_key, file_size, mime_type,
			image_type, modality, body_part, analysis_status, user_id, patient_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		m.ID, m.Filename, m.OriginalFilename, m.ObjectKey, m.FileSize, m.MimeType,
		m.ImageType, m.Modality, m.BodyPart, m.AnalysisStatus, m.UserID, m.PatientID,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *imageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalImage, error) {
	return scanImage(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+imageCols+` FROM medical_image WHERE id = $1`, id))
}

func (r *imageRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*MedicalImage, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.ImageType != "" {
		add("image_type = $%d", f.ImageType)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM medical_image`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM medical_image%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		imageCols, clause, len(args)-1, len(args))
	rows, err := connFor(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalImage
	for rows.Next() {
		m, err := scanImage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *imageRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status AnalysisStatus, confidence *float64, analyzedAt *time.Time) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE medical_image SET analysis_status = $2,
			confidence_score = COALESCE($3, confidence_score),
			analyzed_at = COALESCE($4, analyzed_at),
			updated_at = NOW()
		WHERE id = $1`, id, status, confidence, analyzedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete relies on the ON DELETE CASCADE of image_analysis.image_id.
func (r *imageRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM medical_image WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Analysis --

const (
	uniqueViolation = "23505"
	// at most one pending or processing analysis per image, see 002_analysis_single_active.sql
	activeAnalysisIndex = "uq_image_analysis_active"
)

type analysisRepoPG struct{ pool *pgxpool.Pool }

func NewAnalysisRepoPG(pool *pgxpool.Pool) AnalysisRepository {
	return &analysisRepoPG{pool: pool}
}

const analysisCols = `id, image_id, status, confidence_score, findings, recommendations, created_at, completed_at`

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	err := row.Scan(&a.ID, &a.ImageID, &a.Status, &a.ConfidenceScore, &a.Findings, &a.Recommendations,
		&a.CreatedAt, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	return &a, err
}

func (r *analysisRepoPG) Create(ctx context.Context, a *Analysis) error {
	a.ID = uuid.New()
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO image_analysis (id, image_id, status, confidence_score, findings, recommendations, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		a.ID, a.ImageID, a.Status, a.ConfidenceScore, a.Findings, a.Recommendations, a.CompletedAt,
	).Scan(&a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeAnalysisIndex {
		return ErrAnalysisInProgress
	}
	return err
}

func (r *analysisRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	return scanAnalysis(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+analysisCols+` FROM image_analysis WHERE id = $1`, id))
}

func (r *analysisRepoPG) Update(ctx context.Context, a *Analysis) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE image_analysis SET status=$2, confidence_score=$3, findings=$4, recommendations=$5, completed_at=$6
		WHERE id = $1`,
		a.ID, a.Status, a.ConfidenceScore, a.Findings, a.Recommendations, a.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

func (r *analysisRepoPG) ListByImage(ctx context.Context, imageID uuid.UUID) ([]*Analysis, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+analysisCols+` FROM image_analysis WHERE image_id = $1 ORDER BY created_at DESC`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *analysisRepoPG) LatestCompleted(ctx context.Context, imageID uuid.UUID) (*Analysis, error) {
	return scanAnalysis(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+analysisCols+` FROM image_analysis
		WHERE image_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1`, imageID))
}

func (r *analysisRepoPG) HasActive(ctx context.Context, imageID uuid.UUID) (bool, error) {
	var active bool
	err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM image_analysis WHERE image_id = $1 AND status IN ('pending', 'processing'))`, imageID).Scan(&active)
	return active, err
}
