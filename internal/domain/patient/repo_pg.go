package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Markitchi/Meda/internal/platform/db"
	"github.com/Markitchi/Meda/internal/platform/phi"
)

const uniqueViolation = "23505"

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Patient Repository --

type patientRepoPG struct {
	pool      *pgxpool.Pool
	encryptor phi.FieldEncryptor
}

// NewPatientRepo stores contact details encrypted with enc. A nil enc stores
// them in clear.
func NewPatientRepo(pool *pgxpool.Pool, enc phi.FieldEncryptor) PatientRepository {
	return &patientRepoPG{pool: pool, encryptor: enc}
}

const patientCols = `id, patient_number, first_name, last_name, date_of_birth, gender,
	allergies, current_medications, phone, email, address, created_by, created_at, updated_at`

// seal returns a copy of p with contact fields encrypted.
func (r *patientRepoPG) seal(p *Patient) (*Patient, error) {
	out := *p
	var err error
	if out.Phone, err = phi.SealPtr(r.encryptor, p.Phone); err != nil {
		return nil, fmt.Errorf("encrypt phone: %w", err)
	}
	if out.Email, err = phi.SealPtr(r.encryptor, p.Email); err != nil {
		return nil, fmt.Errorf("encrypt email: %w", err)
	}
	if out.Address, err = phi.SealPtr(r.encryptor, p.Address); err != nil {
		return nil, fmt.Errorf("encrypt address: %w", err)
	}
	return &out, nil
}

func (r *patientRepoPG) open(p *Patient) error {
	var err error
	if p.Phone, err = phi.OpenPtr(r.encryptor, p.Phone); err != nil {
		return fmt.Errorf("decrypt phone: %w", err)
	}
	if p.Email, err = phi.OpenPtr(r.encryptor, p.Email); err != nil {
		return fmt.Errorf("decrypt email: %w", err)
	}
	if p.Address, err = phi.OpenPtr(r.encryptor, p.Address); err != nil {
		return fmt.Errorf("decrypt address: %w", err)
	}
	return nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	s, err := r.seal(p)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	err = connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, patient_number, first_name, last_name, date_of_birth, gender,
			allergies, current_medications, phone, email, address, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		p.ID, s.PatientNumber, s.FirstName, s.LastName, s.DateOfBirth, s.Gender,
		s.Allergies, s.CurrentMedications, s.Phone, s.Email, s.Address, s.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.open(p); err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	s, err := r.seal(p)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	err = connFor(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			allergies=$6, current_medications=$7, phone=$8, email=$9, address=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, s.FirstName, s.LastName, s.DateOfBirth, s.Gender,
		s.Allergies, s.CurrentMedications, s.Phone, s.Email, s.Address,
	).Scan(&p.UpdatedAt)
	return translate(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR patient_number ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM patient%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		patientCols, where, n+1, n+2)
	rows, err := connFor(ctx, r.pool).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		if err := r.open(p); err != nil {
			return nil, 0, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientNumber, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Allergies, &p.CurrentMedications, &p.Phone, &p.Email, &p.Address, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// translate maps driver errors to package errors.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// -- Medical History Repository --

type historyRepoPG struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

const historyCols = `id, patient_id, condition, diagnosed_date, status, notes, created_at`

func scanHistory(row pgx.Row) (*MedicalHistory, error) {
	var h MedicalHistory
	if err := row.Scan(&h.ID, &h.PatientID, &h.Condition, &h.DiagnosedDate, &h.Status, &h.Notes, &h.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &h, nil
}

func (r *historyRepoPG) Create(ctx context.Context, h *MedicalHistory) error {
	h.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_history (id, patient_id, condition, diagnosed_date, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		h.ID, h.PatientID, h.Condition, h.DiagnosedDate, h.Status, h.Notes,
	).Scan(&h.CreatedAt)
}

func (r *historyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalHistory, error) {
	return scanHistory(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+historyCols+` FROM medical_history WHERE id = $1`, id))
}

func (r *historyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicalHistory, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+historyCols+` FROM medical_history WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*MedicalHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (r *historyRepoPG) Update(ctx context.Context, h *MedicalHistory) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE medical_history SET condition=$2, diagnosed_date=$3, status=$4, notes=$5
		WHERE id = $1`,
		h.ID, h.Condition, h.DiagnosedDate, h.Status, h.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *historyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM medical_history WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
