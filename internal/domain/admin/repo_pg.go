package admin

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raypacs/raypacs/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Lab Repository ===========

type labRepoPG struct{ pool *pgxpool.Pool }

func NewLabRepoPG(pool *pgxpool.Pool) LabRepository { return &labRepoPG{pool: pool} }

func (r *labRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

const labCols = `id, external_id, tenant_id, name, active, require_report_verification,
	address_line, city, state, phone, email, logo_url, created_at, updated_at`

func (r *labRepoPG) scanLab(row pgx.Row) (*Lab, error) {
	var l Lab
	err := row.Scan(&l.ID, &l.ExternalID, &l.TenantID, &l.Name, &l.Active, &l.RequireReportVerification,
		&l.AddressLine, &l.City, &l.State, &l.Phone, &l.Email, &l.LogoURL, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *labRepoPG) Create(ctx context.Context, l *Lab) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab (id, external_id, tenant_id, name, active, require_report_verification,
			address_line, city, state, phone, email, logo_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		l.ID, l.ExternalID, l.TenantID, l.Name, l.Active, l.RequireReportVerification,
		l.AddressLine, l.City, l.State, l.Phone, l.Email, l.LogoURL)
	return err
}

func (r *labRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lab, error) {
	return r.scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM lab WHERE id = $1`, id))
}

func (r *labRepoPG) GetByExternalID(ctx context.Context, externalID string) (*Lab, error) {
	return r.scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM lab WHERE external_id = $1`, externalID))
}

func (r *labRepoPG) Update(ctx context.Context, l *Lab) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab SET name=$2, active=$3, require_report_verification=$4,
			address_line=$5, city=$6, state=$7, phone=$8, email=$9, logo_url=$10, updated_at=NOW()
		WHERE id = $1`,
		l.ID, l.Name, l.Active, l.RequireReportVerification,
		l.AddressLine, l.City, l.State, l.Phone, l.Email, l.LogoURL)
	return err
}

func (r *labRepoPG) List(ctx context.Context, limit, offset int) ([]*Lab, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+labCols+` FROM lab ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Lab
	for rows.Next() {
		l, err := r.scanLab(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, nil
}

// =========== DoctorProfile Repository ===========

type doctorProfileRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorProfileRepoPG(pool *pgxpool.Pool) DoctorProfileRepository {
	return &doctorProfileRepoPG{pool: pool}
}

func (r *doctorProfileRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

const doctorCols = `id, user_id, tenant_id, full_name, role, lab_id, require_report_verification,
	signature_key, qualification, registration_number, active, created_at, updated_at`

func (r *doctorProfileRepoPG) scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	var d DoctorProfile
	err := row.Scan(&d.ID, &d.UserID, &d.TenantID, &d.FullName, &d.Role, &d.LabID, &d.RequireReportVerification,
		&d.SignatureKey, &d.Qualification, &d.RegistrationNumber, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorProfileRepoPG) Create(ctx context.Context, d *DoctorProfile) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_profile (id, user_id, tenant_id, full_name, role, lab_id,
			require_report_verification, signature_key, qualification, registration_number, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, d.UserID, d.TenantID, d.FullName, d.Role, d.LabID,
		d.RequireReportVerification, d.SignatureKey, d.Qualification, d.RegistrationNumber, d.Active)
	return err
}

func (r *doctorProfileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor_profile WHERE id = $1`, id))
}

func (r *doctorProfileRepoPG) GetByUserID(ctx context.Context, userID string) (*DoctorProfile, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor_profile WHERE user_id = $1`, userID))
}

func (r *doctorProfileRepoPG) Update(ctx context.Context, d *DoctorProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_profile SET full_name=$2, role=$3, lab_id=$4, require_report_verification=$5,
			signature_key=$6, qualification=$7, registration_number=$8, active=$9, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.FullName, d.Role, d.LabID, d.RequireReportVerification,
		d.SignatureKey, d.Qualification, d.RegistrationNumber, d.Active)
	return err
}

func (r *doctorProfileRepoPG) List(ctx context.Context, labID *uuid.UUID, limit, offset int) ([]*DoctorProfile, int, error) {
	where := ``
	var args []interface{}
	if labID != nil {
		where = ` WHERE lab_id = $1`
		args = append(args, *labID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor_profile`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+doctorCols+` FROM doctor_profile%s ORDER BY full_name LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DoctorProfile
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}
