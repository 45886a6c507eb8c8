package study

import (
	"context"
	"encoding/json"
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

const studyCols = `id, external_id, tenant_id, lab_id, lab_external_id,
	patient_id, patient_external_id, patient_name,
	modality, description, study_date, series_count, instance_count, clinical_history,
	referring_physician, workflow_status, current_category, report_info, report_summary,
	completed_without_verification, copied_from, copied_to, created_at, updated_at`

func (r *repoPG) scanStudy(row pgx.Row) (*Study, error) {
	var st Study
	var refPhys, repInfo, repSummary, copiedTo []byte
	err := row.Scan(&st.ID, &st.ExternalID, &st.TenantID, &st.LabID, &st.LabExternalID,
		&st.PatientID, &st.PatientExternalID, &st.PatientName,
		&st.Modality, &st.Description, &st.StudyDate, &st.SeriesCount, &st.InstanceCount, &st.ClinicalHistory,
		&refPhys, &st.WorkflowStatus, &st.CurrentCategory, &repInfo, &repSummary,
		&st.CompletedWithoutVerification, &st.CopiedFrom, &copiedTo, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(refPhys) > 0 {
		if err := json.Unmarshal(refPhys, &st.ReferringPhysician); err != nil {
			return nil, fmt.Errorf("decode referring_physician: %w", err)
		}
	}
	if len(repInfo) > 0 {
		if err := json.Unmarshal(repInfo, &st.ReportInfo); err != nil {
			return nil, fmt.Errorf("decode report_info: %w", err)
		}
	}
	if len(repSummary) > 0 {
		if err := json.Unmarshal(repSummary, &st.ReportSummary); err != nil {
			return nil, fmt.Errorf("decode report_summary: %w", err)
		}
	}
	if len(copiedTo) > 0 {
		if err := json.Unmarshal(copiedTo, &st.CopiedTo); err != nil {
			return nil, fmt.Errorf("decode copied_to: %w", err)
		}
	}
	return &st, nil
}

func marshalStudyJSON(st *Study) (refPhys, repInfo, repSummary, copiedTo []byte, err error) {
	if refPhys, err = json.Marshal(st.ReferringPhysician); err != nil {
		return
	}
	if repInfo, err = json.Marshal(st.ReportInfo); err != nil {
		return
	}
	if repSummary, err = json.Marshal(st.ReportSummary); err != nil {
		return
	}
	if st.CopiedTo == nil {
		copiedTo = []byte("[]")
		return
	}
	copiedTo, err = json.Marshal(st.CopiedTo)
	return
}

func (r *repoPG) Create(ctx context.Context, st *Study) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	refPhys, repInfo, repSummary, copiedTo, err := marshalStudyJSON(st)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO study (id, external_id, tenant_id, lab_id, lab_external_id,
			patient_id, patient_external_id, patient_name,
			modality, description, study_date, series_count, instance_count, clinical_history,
			referring_physician, workflow_status, current_category, report_info, report_summary,
			completed_without_verification, copied_from, copied_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		st.ID, st.ExternalID, st.TenantID, st.LabID, st.LabExternalID,
		st.PatientID, st.PatientExternalID, st.PatientName,
		st.Modality, st.Description, st.StudyDate, st.SeriesCount, st.InstanceCount, st.ClinicalHistory,
		refPhys, st.WorkflowStatus, st.CurrentCategory, repInfo, repSummary,
		st.CompletedWithoutVerification, st.CopiedFrom, copiedTo)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	return r.scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM study WHERE id = $1`, id))
}

func (r *repoPG) GetByExternalID(ctx context.Context, externalID string) (*Study, error) {
	return r.scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM study WHERE external_id = $1`, externalID))
}

func (r *repoPG) Update(ctx context.Context, st *Study) error {
	refPhys, repInfo, repSummary, copiedTo, err := marshalStudyJSON(st)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE study SET tenant_id=$2, lab_id=$3, lab_external_id=$4,
			patient_id=$5, patient_external_id=$6, patient_name=$7,
			modality=$8, description=$9, study_date=$10, series_count=$11, instance_count=$12,
			clinical_history=$13, referring_physician=$14,
			workflow_status=$15, current_category=$16, report_info=$17, report_summary=$18,
			completed_without_verification=$19, copied_from=$20, copied_to=$21, updated_at=NOW()
		WHERE id = $1`,
		st.ID, st.TenantID, st.LabID, st.LabExternalID,
		st.PatientID, st.PatientExternalID, st.PatientName,
		st.Modality, st.Description, st.StudyDate, st.SeriesCount, st.InstanceCount,
		st.ClinicalHistory, refPhys,
		st.WorkflowStatus, st.CurrentCategory, repInfo, repSummary,
		st.CompletedWithoutVerification, st.CopiedFrom, copiedTo)
	return err
}

func (r *repoPG) List(ctx context.Context, category Category, limit, offset int) ([]*Study, int, error) {
	query := `SELECT ` + studyCols + ` FROM study WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM study WHERE 1=1`
	var args []interface{}
	idx := 1

	if category != "" {
		query += fmt.Sprintf(` AND current_category = $%d`, idx)
		countQuery += fmt.Sprintf(` AND current_category = $%d`, idx)
		args = append(args, category)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Study
	for rows.Next() {
		st, err := r.scanStudy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, st)
	}
	return items, total, nil
}

// -- Status history --

func (r *repoPG) AppendStatus(ctx context.Context, e *StatusEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO study_status_history (id, study_id, status, changed_by, changed_by_name, changed_at, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.StudyID, e.Status, e.ChangedBy, e.ChangedByName, e.ChangedAt, e.Note)
	return err
}

func (r *repoPG) ListStatusHistory(ctx context.Context, studyID uuid.UUID) ([]*StatusEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, study_id, status, changed_by, changed_by_name, changed_at, note
		FROM study_status_history WHERE study_id = $1 ORDER BY changed_at`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusEntry
	for rows.Next() {
		var e StatusEntry
		if err := rows.Scan(&e.ID, &e.StudyID, &e.Status, &e.ChangedBy, &e.ChangedByName, &e.ChangedAt, &e.Note); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, nil
}

// -- Assignments --

func (r *repoPG) AppendAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO study_assignment (id, study_id, assigned_to, assigned_to_name, assigned_by, assigned_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.StudyID, a.AssignedTo, a.AssignedToName, a.AssignedBy, a.AssignedAt)
	return err
}

func (r *repoPG) LatestAssignment(ctx context.Context, studyID uuid.UUID) (*Assignment, error) {
	var a Assignment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, study_id, assigned_to, assigned_to_name, assigned_by, assigned_at
		FROM study_assignment WHERE study_id = $1 ORDER BY assigned_at DESC LIMIT 1`, studyID).
		Scan(&a.ID, &a.StudyID, &a.AssignedTo, &a.AssignedToName, &a.AssignedBy, &a.AssignedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) ListAssignments(ctx context.Context, studyID uuid.UUID) ([]*Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, study_id, assigned_to, assigned_to_name, assigned_by, assigned_at
		FROM study_assignment WHERE study_id = $1 ORDER BY assigned_at`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.StudyID, &a.AssignedTo, &a.AssignedToName, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, nil
}

func (r *repoPG) AppendCopiedTo(ctx context.Context, studyID uuid.UUID, copyExternalID string) error {
	entry, err := json.Marshal([]string{copyExternalID})
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE study SET copied_to = COALESCE(copied_to, '[]'::jsonb) || $2::jsonb, updated_at = NOW()
		WHERE id = $1`, studyID, entry)
	return err
}
