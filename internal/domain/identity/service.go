package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/db"
)

type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

func (s *Service) UpsertPatient(ctx context.Context, p *Patient) error {
	if p.ExternalID == "" {
		return apperror.New(apperror.InvalidArgument, "patient external_id is required")
	}
	if p.FullName == "" {
		return apperror.New(apperror.InvalidArgument, "patient full_name is required")
	}
	if p.TenantID == "" {
		p.TenantID = db.TenantFromContext(ctx)
	}
	if err := s.patients.Upsert(ctx, p); err != nil {
		return apperror.Wrap(apperror.Internal, "upsert patient", err)
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "patient not found")
	}
	return p, err
}

func (s *Service) GetPatientByExternalID(ctx context.Context, tenantID, externalID string) (*Patient, error) {
	if tenantID == "" {
		tenantID = db.TenantFromContext(ctx)
	}
	p, err := s.patients.GetByExternalID(ctx, tenantID, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "patient not found")
	}
	return p, err
}

// SetWorkflowStatus records the workflow status of the patient's active study.
// Callers treat this as best-effort denormalization.
func (s *Service) SetWorkflowStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.patients.SetWorkflowStatus(ctx, id, status)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}
