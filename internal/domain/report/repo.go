package report

import (
	"context"

	"github.com/google/uuid"
)

// HistoryCap bounds the per-report status history. On overflow the oldest
// rows are deleted in the same transaction as the append.
const HistoryCap = 50

type Repository interface {
	Create(ctx context.Context, r *Report) error
	GetByReportID(ctx context.Context, reportID string) (*Report, error)
	Update(ctx context.Context, r *Report) error

	// LatestForPair returns the most recently created report for the
	// (study, clinician) pair.
	LatestForPair(ctx context.Context, studyID uuid.UUID, doctorID string) (*Report, error)
	LatestForStudy(ctx context.Context, studyID uuid.UUID) (*Report, error)
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Report, error)

	AppendStatusHistory(ctx context.Context, e *StatusEntry) error
	ListStatusHistory(ctx context.Context, reportRef uuid.UUID) ([]*StatusEntry, error)
}
