package study

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raypacs/raypacs/internal/domain/admin"
	"github.com/raypacs/raypacs/internal/domain/identity"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/db"
	"github.com/raypacs/raypacs/pkg/identifier"
)

// PatientDirectory upserts the patient stub a registered study references.
type PatientDirectory interface {
	UpsertPatient(ctx context.Context, p *identity.Patient) error
}

// LabDirectory resolves lab references carried in ingestion metadata.
type LabDirectory interface {
	GetLabByExternalID(ctx context.Context, externalID string) (*admin.Lab, error)
}

type Service struct {
	repo     Repository
	coord    *Coordinator
	patients PatientDirectory
	labs     LabDirectory
	pool     *pgxpool.Pool
}

func NewService(repo Repository, coord *Coordinator, patients PatientDirectory, labs LabDirectory, pool *pgxpool.Pool) *Service {
	return &Service{repo: repo, coord: coord, patients: patients, labs: labs, pool: pool}
}

// RegisterStudy ingests study metadata. The patient stub is upserted in the
// same transaction, keyed by (tenant, external id), and the study starts at
// new_study_received with its first history entry.
func (s *Service) RegisterStudy(ctx context.Context, st *Study, patient *identity.Patient) (*Study, error) {
	if patient == nil || patient.ExternalID == "" {
		return nil, apperror.New(apperror.InvalidArgument, "patient external_id is required")
	}
	if patient.FullName == "" {
		return nil, apperror.New(apperror.InvalidArgument, "patient full_name is required")
	}
	if st.TenantID == "" {
		st.TenantID = db.TenantFromContext(ctx)
	}
	patient.TenantID = st.TenantID
	if st.ExternalID == "" {
		st.ExternalID = identifier.New("STD", st.TenantID)
	}

	if st.LabExternalID != nil && *st.LabExternalID != "" {
		lab, err := s.labs.GetLabByExternalID(ctx, *st.LabExternalID)
		if err != nil {
			if apperror.KindOf(err) == apperror.NotFound {
				return nil, apperror.Newf(apperror.InvalidArgument, "lab %q does not exist", *st.LabExternalID)
			}
			return nil, err
		}
		st.LabID = &lab.ID
	}

	actor := auth.UserFromContext(ctx)
	now := time.Now().UTC()
	st.WorkflowStatus = StatusNewStudyReceived
	st.CurrentCategory = CategoryOf(st.WorkflowStatus)

	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.patients.UpsertPatient(ctx, patient); err != nil {
			return err
		}
		st.PatientID = &patient.ID
		st.PatientExternalID = patient.ExternalID
		st.PatientName = patient.FullName
		if err := s.repo.Create(ctx, st); err != nil {
			return apperror.Wrap(apperror.Internal, "create study", err)
		}
		return s.repo.AppendStatus(ctx, &StatusEntry{
			StudyID:       st.ID,
			Status:        StatusNewStudyReceived,
			ChangedBy:     actor.ID,
			ChangedByName: actor.FullName,
			ChangedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) GetStudy(ctx context.Context, externalID string) (*Study, error) {
	st, err := s.repo.GetByExternalID(ctx, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "study not found")
	}
	return st, err
}

func (s *Service) ListStudies(ctx context.Context, category Category, limit, offset int) ([]*Study, int, error) {
	if category != "" && !KnownCategory(category) {
		return nil, 0, apperror.Newf(apperror.InvalidArgument, "unknown category %q", category)
	}
	return s.repo.List(ctx, category, limit, offset)
}

func (s *Service) StatusHistory(ctx context.Context, externalID string) ([]*StatusEntry, error) {
	st, err := s.GetStudy(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStatusHistory(ctx, st.ID)
}

// LatestAssignment returns the authoritative clinician assignment, or nil
// when the study has never been assigned.
func (s *Service) LatestAssignment(ctx context.Context, st *Study) (*Assignment, error) {
	a, err := s.repo.LatestAssignment(ctx, st.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Service) Assignments(ctx context.Context, externalID string) ([]*Assignment, error) {
	st, err := s.GetStudy(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, st.ID)
}

// AssignClinician appends to the study's assignment list and drives the
// workflow to assigned_to_doctor. The latest entry is authoritative for
// doctor-of-record resolution.
func (s *Service) AssignClinician(ctx context.Context, externalID, assignedTo, assignedToName string) (*Outcome, error) {
	if assignedTo == "" {
		return nil, apperror.New(apperror.InvalidArgument, "assigned_to is required")
	}
	st, err := s.GetStudy(ctx, externalID)
	if err != nil {
		return nil, err
	}
	actor := auth.UserFromContext(ctx)

	var out *Outcome
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.repo.AppendAssignment(ctx, &Assignment{
			StudyID:        st.ID,
			AssignedTo:     assignedTo,
			AssignedToName: assignedToName,
			AssignedBy:     actor.ID,
			AssignedAt:     time.Now().UTC(),
		}); err != nil {
			return apperror.Wrap(apperror.Internal, "append assignment", err)
		}
		out, err = s.coord.Apply(ctx, st, Transition{Target: StatusAssignedToDoctor, Actor: actor})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.coord.RunEffects(out)
	return out, nil
}

// ApplyTransition loads the study and runs one workflow event through the
// coordinator, flushing the transition's effects before returning.
func (s *Service) ApplyTransition(ctx context.Context, externalID string, t Transition) (*Outcome, error) {
	st, err := s.GetStudy(ctx, externalID)
	if err != nil {
		return nil, err
	}
	out, err := s.coord.Apply(ctx, st, t)
	if err != nil {
		return nil, err
	}
	s.coord.RunEffects(out)
	return out, nil
}

// TransitionLoaded runs one workflow event against an already loaded study.
// Callers holding a transaction use this to keep report and study writes in
// the same commit; they own flushing the returned outcome through
// RunEffects after that commit.
func (s *Service) TransitionLoaded(ctx context.Context, st *Study, t Transition) (*Outcome, error) {
	return s.coord.Apply(ctx, st, t)
}

// RunEffects executes the deferred effects carried by the given outcomes.
// Callers of TransitionLoaded invoke it once their transaction committed.
func (s *Service) RunEffects(outcomes ...*Outcome) {
	s.coord.RunEffects(outcomes...)
}

func (s *Service) Archive(ctx context.Context, externalID string) (*Outcome, error) {
	return s.ApplyTransition(ctx, externalID, Transition{Target: StatusArchived, Actor: auth.UserFromContext(ctx)})
}
