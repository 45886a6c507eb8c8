package admin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/db"
	"github.com/raypacs/raypacs/pkg/identifier"
)

type Service struct {
	labs    LabRepository
	doctors DoctorProfileRepository
}

func NewService(labs LabRepository, doctors DoctorProfileRepository) *Service {
	return &Service{labs: labs, doctors: doctors}
}

var clinicianRoles = map[string]bool{
	auth.RoleRadiologist:     true,
	auth.RoleReferringDoctor: true,
	auth.RoleVerifier:        true,
}

// -- Lab --

func (s *Service) CreateLab(ctx context.Context, l *Lab) error {
	if l.Name == "" {
		return apperror.New(apperror.InvalidArgument, "lab name is required")
	}
	if l.TenantID == "" {
		l.TenantID = db.TenantFromContext(ctx)
	}
	if l.ExternalID == "" {
		l.ExternalID = identifier.New("LAB", l.TenantID)
	}
	l.Active = true
	if err := s.labs.Create(ctx, l); err != nil {
		return apperror.Wrap(apperror.Internal, "create lab", err)
	}
	return nil
}

func (s *Service) GetLab(ctx context.Context, id uuid.UUID) (*Lab, error) {
	l, err := s.labs.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "lab not found")
	}
	return l, err
}

func (s *Service) GetLabByExternalID(ctx context.Context, externalID string) (*Lab, error) {
	l, err := s.labs.GetByExternalID(ctx, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "lab not found")
	}
	return l, err
}

func (s *Service) UpdateLab(ctx context.Context, l *Lab) error {
	if l.Name == "" {
		return apperror.New(apperror.InvalidArgument, "lab name is required")
	}
	return s.labs.Update(ctx, l)
}

func (s *Service) ListLabs(ctx context.Context, limit, offset int) ([]*Lab, int, error) {
	return s.labs.List(ctx, limit, offset)
}

// -- DoctorProfile --

func (s *Service) CreateDoctorProfile(ctx context.Context, d *DoctorProfile) error {
	if d.UserID == "" {
		return apperror.New(apperror.InvalidArgument, "user_id is required")
	}
	if d.FullName == "" {
		return apperror.New(apperror.InvalidArgument, "full_name is required")
	}
	if d.Role == "" {
		d.Role = auth.RoleRadiologist
	}
	if !clinicianRoles[d.Role] {
		return apperror.Newf(apperror.InvalidArgument, "role %q is not a clinician role", d.Role)
	}
	if d.TenantID == "" {
		d.TenantID = db.TenantFromContext(ctx)
	}
	d.Active = true
	if err := s.doctors.Create(ctx, d); err != nil {
		return apperror.Wrap(apperror.Internal, "create doctor profile", err)
	}
	return nil
}

func (s *Service) GetDoctorProfile(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "doctor profile not found")
	}
	return d, err
}

func (s *Service) GetDoctorProfileByUserID(ctx context.Context, userID string) (*DoctorProfile, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "doctor profile not found")
	}
	return d, err
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, d *DoctorProfile) error {
	if d.Role != "" && !clinicianRoles[d.Role] {
		return apperror.Newf(apperror.InvalidArgument, "role %q is not a clinician role", d.Role)
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) ListDoctorProfiles(ctx context.Context, labID *uuid.UUID, limit, offset int) ([]*DoctorProfile, int, error) {
	return s.doctors.List(ctx, labID, limit, offset)
}

// ResolveVerification reads the lab-level and doctor-level verification flags
// for one finalize decision. A missing lab or doctor profile contributes
// false rather than failing, so legacy studies without a lab reference still
// finalize.
func (s *Service) ResolveVerification(ctx context.Context, labID *uuid.UUID, doctorUserID string) (VerificationRequirement, error) {
	var req VerificationRequirement

	if labID != nil {
		l, err := s.labs.GetByID(ctx, *labID)
		switch {
		case err == nil:
			req.LabRequires = l.RequireReportVerification
		case errors.Is(err, pgx.ErrNoRows):
			// lab reference dangling, treated as no requirement
		default:
			return req, apperror.Wrap(apperror.Internal, "resolve lab verification flag", err)
		}
	}

	if doctorUserID != "" {
		d, err := s.doctors.GetByUserID(ctx, doctorUserID)
		switch {
		case err == nil:
			req.DoctorRequires = d.RequireReportVerification
		case errors.Is(err, pgx.ErrNoRows):
			// no profile on file, treated as no requirement
		default:
			return req, apperror.Wrap(apperror.Internal, "resolve doctor verification flag", err)
		}
	}

	return req, nil
}
