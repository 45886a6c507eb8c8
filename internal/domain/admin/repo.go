package admin

import (
	"context"

	"github.com/google/uuid"
)

type LabRepository interface {
	Create(ctx context.Context, l *Lab) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lab, error)
	GetByExternalID(ctx context.Context, externalID string) (*Lab, error)
	Update(ctx context.Context, l *Lab) error
	List(ctx context.Context, limit, offset int) ([]*Lab, int, error)
}

type DoctorProfileRepository interface {
	Create(ctx context.Context, d *DoctorProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	GetByUserID(ctx context.Context, userID string) (*DoctorProfile, error)
	Update(ctx context.Context, d *DoctorProfile) error
	List(ctx context.Context, labID *uuid.UUID, limit, offset int) ([]*DoctorProfile, int, error)
}
