package documents

import (
	"context"

	"github.com/google/uuid"
)

type NoteRepository interface {
	Create(ctx context.Context, n *StudyNote) error
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*StudyNote, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)
	// ListByStudy returns active attachments only.
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Attachment, error)
	// Deactivate soft-deletes the metadata record.
	Deactivate(ctx context.Context, id uuid.UUID) error
}
