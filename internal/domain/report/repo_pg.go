package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const reportCols = `id, report_id, tenant_id, study_id, study_external_id,
	patient_id, patient_name, referring_physician,
	doctor_id, doctor_name, created_by, created_by_name, degraded_ownership,
	report_type, report_status, content, file_name, verification, downloads, prints,
	created_at, updated_at`

func scanReport(row pgx.Row) (*Report, error) {
	var rp Report
	var content, verification, downloads, prints []byte
	err := row.Scan(&rp.ID, &rp.ReportID, &rp.TenantID, &rp.StudyID, &rp.StudyExternalID,
		&rp.PatientID, &rp.PatientName, &rp.ReferringPhysician,
		&rp.DoctorID, &rp.DoctorName, &rp.CreatedBy, &rp.CreatedByName, &rp.DegradedOwnership,
		&rp.ReportType, &rp.ReportStatus, &content, &rp.FileName, &verification, &downloads, &prints,
		&rp.CreatedAt, &rp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		raw []byte
		dst interface{}
	}{
		{content, &rp.Content},
		{verification, &rp.Verification},
		{downloads, &rp.Downloads},
		{prints, &rp.Prints},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode report column: %w", err)
		}
	}
	return &rp, nil
}

func marshalReportJSON(rp *Report) (content, verification, downloads, prints []byte, err error) {
	if content, err = json.Marshal(rp.Content); err != nil {
		return
	}
	if verification, err = json.Marshal(rp.Verification); err != nil {
		return
	}
	if downloads, err = json.Marshal(rp.Downloads); err != nil {
		return
	}
	prints, err = json.Marshal(rp.Prints)
	return
}

// isUniqueViolation detects an insert collision on a unique constraint.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *repoPG) Create(ctx context.Context, rp *Report) error {
	if rp.ID == uuid.Nil {
		rp.ID = uuid.New()
	}
	content, verification, downloads, prints, err := marshalReportJSON(rp)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO report (id, report_id, tenant_id, study_id, study_external_id,
			patient_id, patient_name, referring_physician,
			doctor_id, doctor_name, created_by, created_by_name, degraded_ownership,
			report_type, report_status, content, file_name, verification, downloads, prints)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		rp.ID, rp.ReportID, rp.TenantID, rp.StudyID, rp.StudyExternalID,
		rp.PatientID, rp.PatientName, rp.ReferringPhysician,
		rp.DoctorID, rp.DoctorName, rp.CreatedBy, rp.CreatedByName, rp.DegradedOwnership,
		rp.ReportType, rp.ReportStatus, content, rp.FileName, verification, downloads, prints)
	if isUniqueViolation(err) {
		return apperror.Wrap(apperror.Conflict, "report id already exists", err)
	}
	return err
}

func (r *repoPG) GetByReportID(ctx context.Context, reportID string) (*Report, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reportCols+` FROM report WHERE report_id = $1`, reportID))
}

func (r *repoPG) Update(ctx context.Context, rp *Report) error {
	content, verification, downloads, prints, err := marshalReportJSON(rp)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE report SET doctor_id=$2, doctor_name=$3, degraded_ownership=$4,
			report_type=$5, report_status=$6, content=$7, file_name=$8,
			verification=$9, downloads=$10, prints=$11,
			patient_name=$12, referring_physician=$13, updated_at=NOW()
		WHERE id = $1`,
		rp.ID, rp.DoctorID, rp.DoctorName, rp.DegradedOwnership,
		rp.ReportType, rp.ReportStatus, content, rp.FileName,
		verification, downloads, prints,
		rp.PatientName, rp.ReferringPhysician)
	return err
}

func (r *repoPG) LatestForPair(ctx context.Context, studyID uuid.UUID, doctorID string) (*Report, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx, `
		SELECT `+reportCols+` FROM report
		WHERE study_id = $1 AND doctor_id = $2
		ORDER BY created_at DESC LIMIT 1`, studyID, doctorID))
}

func (r *repoPG) LatestForStudy(ctx context.Context, studyID uuid.UUID) (*Report, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx, `
		SELECT `+reportCols+` FROM report
		WHERE study_id = $1 ORDER BY created_at DESC LIMIT 1`, studyID))
}

func (r *repoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reportCols+` FROM report WHERE study_id = $1 ORDER BY created_at DESC`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rp)
	}
	return items, nil
}

// AppendStatusHistory inserts one entry and trims the oldest rows beyond
// the cap inside the caller's transaction.
func (r *repoPG) AppendStatusHistory(ctx context.Context, e *StatusEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	c := r.conn(ctx)
	_, err := c.Exec(ctx, `
		INSERT INTO report_status_history (id, report_ref, status, changed_by, changed_at, note)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.ReportRef, e.Status, e.ChangedBy, e.ChangedAt, e.Note)
	if err != nil {
		return err
	}
	_, err = c.Exec(ctx, `
		DELETE FROM report_status_history
		WHERE report_ref = $1 AND id NOT IN (
			SELECT id FROM report_status_history
			WHERE report_ref = $1 ORDER BY changed_at DESC LIMIT $2
		)`, e.ReportRef, HistoryCap)
	return err
}

func (r *repoPG) ListStatusHistory(ctx context.Context, reportRef uuid.UUID) ([]*StatusEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, report_ref, status, changed_by, changed_at, note
		FROM report_status_history WHERE report_ref = $1 ORDER BY changed_at`, reportRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusEntry
	for rows.Next() {
		var e StatusEntry
		if err := rows.Scan(&e.ID, &e.ReportRef, &e.Status, &e.ChangedBy, &e.ChangedAt, &e.Note); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, nil
}
