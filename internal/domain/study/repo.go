package study

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, st *Study) error
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
	GetByExternalID(ctx context.Context, externalID string) (*Study, error)
	Update(ctx context.Context, st *Study) error
	List(ctx context.Context, category Category, limit, offset int) ([]*Study, int, error)

	AppendStatus(ctx context.Context, e *StatusEntry) error
	ListStatusHistory(ctx context.Context, studyID uuid.UUID) ([]*StatusEntry, error)

	AppendAssignment(ctx context.Context, a *Assignment) error
	LatestAssignment(ctx context.Context, studyID uuid.UUID) (*Assignment, error)
	ListAssignments(ctx context.Context, studyID uuid.UUID) ([]*Assignment, error)

	AppendCopiedTo(ctx context.Context, studyID uuid.UUID, copyExternalID string) error
}
