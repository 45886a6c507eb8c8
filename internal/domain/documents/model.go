package documents

import (
	"time"

	"github.com/google/uuid"
)

// StudyNote is one entry of a study's discussion thread. Author identity is
// denormalized into AuthorName so cross-tenant copies can keep the display
// name while dropping the user reference.
type StudyNote struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	StudyID        uuid.UUID  `db:"study_id" json:"study_id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	AuthorID       *string    `db:"author_id" json:"author_id,omitempty"`
	AuthorName     string     `db:"author_name" json:"author_name"`
	Text           string     `db:"note_text" json:"text"`
	CopiedFromNote *uuid.UUID `db:"copied_from_note" json:"copied_from_note,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Attachment is the metadata record for a file stored in the blob store.
type Attachment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StudyID     uuid.UUID `db:"study_id" json:"study_id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageKey  string    `db:"storage_key" json:"storage_key"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size_bytes" json:"size"`
	Generated   bool      `db:"generated" json:"generated"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
