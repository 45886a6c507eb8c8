package documents

import (
	"context"

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

// -- Notes --

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

func (r *noteRepoPG) Create(ctx context.Context, n *StudyNote) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO study_note (id, study_id, tenant_id, author_id, author_name, note_text, copied_from_note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.StudyID, n.TenantID, n.AuthorID, n.AuthorName, n.Text, n.CopiedFromNote)
	return err
}

func (r *noteRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*StudyNote, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, study_id, tenant_id, author_id, author_name, note_text, copied_from_note, created_at
		FROM study_note WHERE study_id = $1 ORDER BY created_at`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StudyNote
	for rows.Next() {
		var n StudyNote
		if err := rows.Scan(&n.ID, &n.StudyID, &n.TenantID, &n.AuthorID, &n.AuthorName, &n.Text, &n.CopiedFromNote, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &n)
	}
	return items, nil
}

// -- Attachments --

type attachmentRepoPG struct{ pool *pgxpool.Pool }

func NewAttachmentRepoPG(pool *pgxpool.Pool) AttachmentRepository { return &attachmentRepoPG{pool: pool} }

const attachmentCols = `id, study_id, tenant_id, file_name, storage_key, content_type, size_bytes, generated, uploaded_by, active, created_at`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.StudyID, &a.TenantID, &a.FileName, &a.StorageKey, &a.ContentType,
		&a.Size, &a.Generated, &a.UploadedBy, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *attachmentRepoPG) Create(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO attachment (id, study_id, tenant_id, file_name, storage_key, content_type, size_bytes, generated, uploaded_by, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.StudyID, a.TenantID, a.FileName, a.StorageKey, a.ContentType, a.Size, a.Generated, a.UploadedBy, a.Active)
	return err
}

func (r *attachmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return scanAttachment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM attachment WHERE id = $1`, id))
}

func (r *attachmentRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Attachment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+attachmentCols+` FROM attachment
		WHERE study_id = $1 AND active ORDER BY created_at`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

func (r *attachmentRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `UPDATE attachment SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
