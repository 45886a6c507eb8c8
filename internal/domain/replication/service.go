package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/raypacs/raypacs/internal/domain/documents"
	"github.com/raypacs/raypacs/internal/domain/identity"
	"github.com/raypacs/raypacs/internal/domain/report"
	"github.com/raypacs/raypacs/internal/domain/study"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/blobstore"
	"github.com/raypacs/raypacs/internal/platform/db"
	"github.com/raypacs/raypacs/pkg/identifier"
)

// PatientUpserter creates-or-reuses the patient stub in the target tenant.
type PatientUpserter interface {
	UpsertPatient(ctx context.Context, p *identity.Patient) error
}

// Options selects which parts of the study graph travel with the copy.
type Options struct {
	CopyNotes       bool   `json:"copy_notes"`
	CopyReports     bool   `json:"copy_reports"`
	CopyAttachments bool   `json:"copy_attachments"`
	Reason          string `json:"reason"`
}

// Result reports the new study's identity and how much of the graph made it
// across. Counts reflect what actually copied; per-item failures reduce
// them instead of failing the operation.
type Result struct {
	StudyID           uuid.UUID `json:"study_id"`
	StudyExternalID   string    `json:"study_external_id"`
	PatientID         uuid.UUID `json:"patient_id"`
	NotesCopied       int       `json:"notes_copied"`
	ReportsCopied     int       `json:"reports_copied"`
	AttachmentsCopied int       `json:"attachments_copied"`
}

// Service deep-copies a study graph into another tenant. The study and
// patient land atomically; notes, reports, and attachments are best-effort
// phases that degrade independently.
type Service struct {
	studies     study.Repository
	reports     report.Repository
	notes       documents.NoteRepository
	attachments documents.AttachmentRepository
	patients    PatientUpserter
	blobs       blobstore.Store
	pool        *pgxpool.Pool
	logger      zerolog.Logger

	// inTenant runs fn against the named tenant's schema.
	inTenant func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

func NewService(studies study.Repository, reports report.Repository, notes documents.NoteRepository, attachments documents.AttachmentRepository, patients PatientUpserter, blobs blobstore.Store, pool *pgxpool.Pool, logger zerolog.Logger) *Service {
	s := &Service{
		studies: studies, reports: reports, notes: notes, attachments: attachments,
		patients: patients, blobs: blobs, pool: pool, logger: logger,
	}
	s.inTenant = func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
		return db.WithTenant(ctx, s.pool, tenantID, fn)
	}
	return s
}

// CopyStudy replicates the source study into targetTenant with fresh
// identifiers and workflow state reset to new_study_received. Assigned
// clinician references never cross the tenant boundary.
func (s *Service) CopyStudy(ctx context.Context, sourceExternalID, targetTenant string, opts Options) (*Result, error) {
	actor := auth.UserFromContext(ctx)
	if !actor.IsElevated() {
		return nil, apperror.New(apperror.PermissionDenied, "cross-organization copy requires an elevated role")
	}
	if targetTenant == "" {
		return nil, apperror.New(apperror.InvalidArgument, "target organization is required")
	}

	src, err := s.studies.GetByExternalID(ctx, sourceExternalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "source study not found")
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "load source study", err)
	}
	if src.TenantID == targetTenant {
		return nil, apperror.New(apperror.InvalidArgument, "source and target organization are the same")
	}

	// Read the rest of the graph while still on the source tenant.
	var srcNotes []*documents.StudyNote
	var srcReports []*report.Report
	var srcAttachments []*documents.Attachment
	if opts.CopyNotes {
		if srcNotes, err = s.notes.ListByStudy(ctx, src.ID); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "load source notes", err)
		}
	}
	if opts.CopyReports {
		if srcReports, err = s.reports.ListByStudy(ctx, src.ID); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "load source reports", err)
		}
	}
	if opts.CopyAttachments {
		if srcAttachments, err = s.attachments.ListByStudy(ctx, src.ID); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "load source attachments", err)
		}
	}

	copyIDTokens := []string{targetTenant}
	if src.LabExternalID != nil && *src.LabExternalID != "" {
		copyIDTokens = append(copyIDTokens, *src.LabExternalID)
	}
	cp := s.buildCopy(src, identifier.New("STD", copyIDTokens...), targetTenant)

	result := &Result{StudyExternalID: cp.ExternalID}

	// Atomic core: patient stub and study copy commit together.
	err = s.inTenant(ctx, targetTenant, func(tctx context.Context) error {
		return db.WithTx(tctx, s.pool, func(tctx context.Context) error {
			patient := &identity.Patient{
				TenantID:   targetTenant,
				ExternalID: src.PatientExternalID,
				FullName:   src.PatientName,
			}
			if err := s.patients.UpsertPatient(tctx, patient); err != nil {
				return err
			}
			cp.PatientID = &patient.ID
			result.PatientID = patient.ID

			if err := s.studies.Create(tctx, cp); err != nil {
				return apperror.Wrap(apperror.Internal, "create study copy", err)
			}
			note := fmt.Sprintf("copied from %s", src.ExternalID)
			if opts.Reason != "" {
				note = fmt.Sprintf("copied from %s: %s", src.ExternalID, opts.Reason)
			}
			return s.studies.AppendStatus(tctx, &study.StatusEntry{
				StudyID:       cp.ID,
				Status:        study.StatusNewStudyReceived,
				ChangedBy:     actor.ID,
				ChangedByName: actor.FullName,
				ChangedAt:     time.Now().UTC(),
				Note:          &note,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	result.StudyID = cp.ID

	// Best-effort phases. Each degrades independently; a failure is logged
	// and reflected in the counts, never rolled back into the core.
	if opts.CopyNotes {
		result.NotesCopied = s.copyNotes(ctx, srcNotes, cp, targetTenant)
	}
	if opts.CopyReports {
		result.ReportsCopied = s.copyReports(ctx, srcReports, cp, targetTenant, actor)
	}
	if opts.CopyAttachments {
		result.AttachmentsCopied = s.copyAttachments(ctx, srcAttachments, cp, targetTenant, actor)
	}

	// Lineage back-reference on the source side.
	if err := s.studies.AppendCopiedTo(ctx, src.ID, cp.ExternalID); err != nil {
		s.logger.Warn().Err(err).
			Str("source", src.ExternalID).
			Str("copy", cp.ExternalID).
			Msg("recording copy lineage on the source study failed")
	}

	return result, nil
}

// buildCopy carries clinically descriptive fields verbatim and resets every
// workflow field to its initial state. Source-tenant user references are
// stripped.
func (s *Service) buildCopy(src *study.Study, externalID, targetTenant string) *study.Study {
	return &study.Study{
		ExternalID:         externalID,
		TenantID:           targetTenant,
		LabExternalID:      src.LabExternalID,
		PatientExternalID:  src.PatientExternalID,
		PatientName:        src.PatientName,
		Modality:           src.Modality,
		Description:        src.Description,
		StudyDate:          src.StudyDate,
		SeriesCount:        src.SeriesCount,
		InstanceCount:      src.InstanceCount,
		ClinicalHistory:    src.ClinicalHistory,
		ReferringPhysician: src.ReferringPhysician,
		WorkflowStatus:     study.StatusNewStudyReceived,
		CurrentCategory:    study.CategoryOf(study.StatusNewStudyReceived),
		CopiedFrom:         &src.ExternalID,
	}
}

func (s *Service) copyNotes(ctx context.Context, srcNotes []*documents.StudyNote, cp *study.Study, targetTenant string) int {
	copied := 0
	err := s.inTenant(ctx, targetTenant, func(tctx context.Context) error {
		for _, n := range srcNotes {
			srcID := n.ID
			err := s.notes.Create(tctx, &documents.StudyNote{
				StudyID:        cp.ID,
				TenantID:       targetTenant,
				AuthorName:     n.AuthorName,
				Text:           n.Text,
				CopiedFromNote: &srcID,
			})
			if err != nil {
				return err
			}
			copied++
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("copy", cp.ExternalID).Msg("copying notes failed")
	}
	return copied
}

func (s *Service) copyReports(ctx context.Context, srcReports []*report.Report, cp *study.Study, targetTenant string, actor auth.User) int {
	copied := 0
	err := s.inTenant(ctx, targetTenant, func(tctx context.Context) error {
		for _, src := range srcReports {
			rp := &report.Report{
				ReportID:           identifier.New("RPT", targetTenant),
				TenantID:           targetTenant,
				StudyID:            cp.ID,
				StudyExternalID:    cp.ExternalID,
				PatientID:          cp.PatientID,
				PatientName:        src.PatientName,
				ReferringPhysician: src.ReferringPhysician,
				DoctorID:           actor.ID,
				DoctorName:         actor.FullName,
				CreatedBy:          actor.ID,
				CreatedByName:      actor.FullName,
				ReportType:         report.TypeDraft,
				ReportStatus:       report.StatusDraft,
				Content:            src.Content,
				FileName:           src.FileName,
			}
			if err := s.reports.Create(tctx, rp); err != nil {
				return err
			}
			note := fmt.Sprintf("copied from %s", src.ReportID)
			err := s.reports.AppendStatusHistory(tctx, &report.StatusEntry{
				ReportRef: rp.ID,
				Status:    report.StatusDraft,
				ChangedBy: actor.ID,
				ChangedAt: time.Now().UTC(),
				Note:      &note,
			})
			if err != nil {
				return err
			}
			copied++
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("copy", cp.ExternalID).Msg("copying reports failed")
	}
	return copied
}

func (s *Service) copyAttachments(ctx context.Context, srcAttachments []*documents.Attachment, cp *study.Study, targetTenant string, actor auth.User) int {
	copied := 0
	err := s.inTenant(ctx, targetTenant, func(tctx context.Context) error {
		for _, a := range srcAttachments {
			newKey := blobstore.ObjectKey(targetTenant, cp.ExternalID, a.FileName)
			if err := s.blobs.Copy(tctx, a.StorageKey, newKey); err != nil {
				s.logger.Warn().Err(err).
					Str("attachment", a.FileName).
					Str("copy", cp.ExternalID).
					Msg("duplicating attachment blob failed, skipping")
				continue
			}
			err := s.attachments.Create(tctx, &documents.Attachment{
				StudyID:     cp.ID,
				TenantID:    targetTenant,
				FileName:    a.FileName,
				StorageKey:  newKey,
				ContentType: a.ContentType,
				Size:        a.Size,
				Generated:   a.Generated,
				UploadedBy:  actor.ID,
				Active:      true,
			})
			if err != nil {
				s.logger.Warn().Err(err).
					Str("attachment", a.FileName).
					Str("copy", cp.ExternalID).
					Msg("recording copied attachment failed, skipping")
				continue
			}
			copied++
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("copy", cp.ExternalID).Msg("copying attachments failed")
	}
	return copied
}
