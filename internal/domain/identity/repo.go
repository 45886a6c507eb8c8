package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	// Upsert inserts or updates a patient keyed by (tenant_id, external_id)
	// and fills in the row ID either way.
	Upsert(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*Patient, error)
	SetWorkflowStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
