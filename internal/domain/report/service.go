package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/raypacs/raypacs/internal/domain/admin"
	"github.com/raypacs/raypacs/internal/domain/study"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/blobstore"
	"github.com/raypacs/raypacs/internal/platform/db"
	"github.com/raypacs/raypacs/internal/platform/render"
	"github.com/raypacs/raypacs/pkg/identifier"
)

// renderTimeout bounds the best-effort document rendering after a report
// finalizes. A slow renderer never delays the finalize response for longer.
const renderTimeout = 10 * time.Second

// StudyDirectory is the slice of the study service the report lifecycle
// needs: loading, assignment lookup, and workflow transitions.
type StudyDirectory interface {
	GetStudy(ctx context.Context, externalID string) (*study.Study, error)
	LatestAssignment(ctx context.Context, st *study.Study) (*study.Assignment, error)
	TransitionLoaded(ctx context.Context, st *study.Study, t study.Transition) (*study.Outcome, error)
	RunEffects(outcomes ...*study.Outcome)
}

// VerificationResolver reads the lab- and doctor-level verification flags
// for one finalize decision.
type VerificationResolver interface {
	ResolveVerification(ctx context.Context, labID *uuid.UUID, doctorUserID string) (admin.VerificationRequirement, error)
}

// RenderedDocument describes a rendered report binary already stored in the
// blob store, ready to be recorded as a study attachment.
type RenderedDocument struct {
	Study       *study.Study
	FileName    string
	Key         string
	ContentType string
	Size        int64
	UploadedBy  string
}

// AttachmentSink records rendered documents against the study.
type AttachmentSink interface {
	RecordRendered(ctx context.Context, doc RenderedDocument) error
}

type Service struct {
	repo     Repository
	studies  StudyDirectory
	policy   VerificationResolver
	renderer render.Renderer
	blobs    blobstore.Store
	sink     AttachmentSink
	pool     *pgxpool.Pool
	logger   zerolog.Logger
}

func NewService(repo Repository, studies StudyDirectory, policy VerificationResolver, renderer render.Renderer, blobs blobstore.Store, sink AttachmentSink, pool *pgxpool.Pool, logger zerolog.Logger) *Service {
	return &Service{
		repo: repo, studies: studies, policy: policy,
		renderer: renderer, blobs: blobs, sink: sink,
		pool: pool, logger: logger,
	}
}

// ContentInput is the report body as submitted by the author.
type ContentInput struct {
	Body     string            `json:"body"`
	Template string            `json:"template"`
	Images   map[string]string `json:"images"`
}

// Summary is the caller-facing result of a lifecycle operation.
type Summary struct {
	ReportID                     string         `json:"report_id"`
	FileName                     string         `json:"file_name"`
	ReportStatus                 ReportStatus   `json:"report_status"`
	StudyStatus                  study.Status   `json:"study_status"`
	StudyCategory                study.Category `json:"study_category"`
	VerificationRequired         bool           `json:"verification_required"`
	CompletedWithoutVerification bool           `json:"completed_without_verification"`
	NextStep                     string         `json:"next_step"`
	DegradedOwnership            bool           `json:"degraded_ownership,omitempty"`
}

// owner is the clinician a report is attributed to, which may differ from
// the acting user when an administrator writes on a clinician's behalf.
type owner struct {
	DoctorID   string
	DoctorName string
	Degraded   bool
}

// resolveOwner implements doctor-of-record resolution. Clinicians own their
// own reports; administrative actors write on behalf of the most recently
// assigned clinician. With no assignment on file the administrator's own
// identity is used and the outcome is marked degraded for the audit trail.
func (s *Service) resolveOwner(ctx context.Context, actor auth.User, st *study.Study) (owner, error) {
	if actor.IsClinician() {
		return owner{DoctorID: actor.ID, DoctorName: actor.FullName}, nil
	}
	a, err := s.studies.LatestAssignment(ctx, st)
	if err != nil {
		return owner{}, apperror.Wrap(apperror.Internal, "resolve study assignment", err)
	}
	if a != nil {
		return owner{DoctorID: a.AssignedTo, DoctorName: a.AssignedToName}, nil
	}
	s.logger.Warn().
		Str("study", st.ExternalID).
		Str("actor", actor.ID).
		Msg("administrative report author with no clinician assignment, falling back to actor identity")
	return owner{DoctorID: actor.ID, DoctorName: actor.FullName, Degraded: true}, nil
}

// loadAuthorized loads the study and enforces the tenant boundary. A study
// with no tenant stamped adopts the actor's tenant; the next workflow write
// persists it.
func (s *Service) loadAuthorized(ctx context.Context, studyExternalID string, actor auth.User) (*study.Study, error) {
	if strings.TrimSpace(studyExternalID) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "study id is required")
	}
	st, err := s.studies.GetStudy(ctx, studyExternalID)
	if err != nil {
		return nil, err
	}
	if st.TenantID == "" {
		st.TenantID = actor.TenantID
	} else if actor.TenantID != "" && st.TenantID != actor.TenantID {
		return nil, apperror.New(apperror.PermissionDenied, "study belongs to a different organization")
	}
	return st, nil
}

// upsertReport enforces the at-most-one-active-report rule for a
// (study, clinician) pair: the latest existing report is mutated in place,
// a new record is created only when none exists. Content statistics are
// recomputed on every save. Returns the report and whether it was created.
func (s *Service) upsertReport(ctx context.Context, st *study.Study, own owner, actor auth.User, in ContentInput, rtype ReportType, rstatus ReportStatus, fileName string) (*Report, bool, error) {
	content := Content{Body: in.Body, Template: in.Template, Images: in.Images}
	content.ComputeStats()

	overwrite := func(existing *Report) (*Report, bool, error) {
		existing.ReportType = rtype
		existing.ReportStatus = rstatus
		existing.Content = content
		existing.FileName = fileName
		existing.DoctorName = own.DoctorName
		existing.DegradedOwnership = own.Degraded
		existing.PatientName = st.PatientName
		existing.ReferringPhysician = st.ReferringPhysician.Name
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, false, apperror.Wrap(apperror.Internal, "update report", err)
		}
		return existing, false, nil
	}

	existing, err := s.repo.LatestForPair(ctx, st.ID, own.DoctorID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, apperror.Wrap(apperror.Internal, "load existing report", err)
	}
	if existing != nil {
		return overwrite(existing)
	}

	rp := &Report{
		ReportID:           identifier.New("RPT", st.TenantID),
		TenantID:           st.TenantID,
		StudyID:            st.ID,
		StudyExternalID:    st.ExternalID,
		PatientID:          st.PatientID,
		PatientName:        st.PatientName,
		ReferringPhysician: st.ReferringPhysician.Name,
		DoctorID:           own.DoctorID,
		DoctorName:         own.DoctorName,
		CreatedBy:          actor.ID,
		CreatedByName:      actor.FullName,
		DegradedOwnership:  own.Degraded,
		ReportType:         rtype,
		ReportStatus:       rstatus,
		Content:            content,
		FileName:           fileName,
	}
	err = s.repo.Create(ctx, rp)
	if apperror.KindOf(err) == apperror.Conflict {
		// Either a concurrent submission won the race for this pair, or the
		// generated report identity collided. A racing winner shows up on
		// re-read and is overwritten in place, keeping last write wins.
		raced, rerr := s.repo.LatestForPair(ctx, st.ID, own.DoctorID)
		if rerr != nil && !errors.Is(rerr, pgx.ErrNoRows) {
			return nil, false, apperror.Wrap(apperror.Internal, "load existing report", rerr)
		}
		if raced != nil {
			return overwrite(raced)
		}
		// identity collision, regenerate once
		rp.ID = uuid.Nil
		rp.ReportID = identifier.New("RPT", st.TenantID)
		err = s.repo.Create(ctx, rp)
	}
	if err != nil {
		if apperror.KindOf(err) == apperror.Conflict {
			return nil, false, err
		}
		return nil, false, apperror.Wrap(apperror.Internal, "create report", err)
	}
	return rp, true, nil
}

// StoreDraft saves draft content for the acting user's attributed clinician
// and drives the study to report_drafted. Study and report mutate in one
// transaction or not at all.
func (s *Service) StoreDraft(ctx context.Context, studyExternalID string, in ContentInput) (*Summary, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "report body is required")
	}
	actor := auth.UserFromContext(ctx)
	st, err := s.loadAuthorized(ctx, studyExternalID, actor)
	if err != nil {
		return nil, err
	}
	own, err := s.resolveOwner(ctx, actor, st)
	if err != nil {
		return nil, err
	}

	var rp *Report
	var out *study.Outcome
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		var created bool
		var err error
		rp, created, err = s.upsertReport(ctx, st, own, actor, in, TypeDraft, StatusDraft, FileNameFor(actor.FullName, st.PatientExternalID))
		if err != nil {
			return err
		}
		note := "draft updated"
		if created {
			note = "draft created"
		}
		if err := s.appendHistory(ctx, rp, actor, &note); err != nil {
			return err
		}
		st.ReportSummary.Attach(rp.ReportID, string(rp.ReportStatus), string(rp.ReportType))
		out, err = s.studies.TransitionLoaded(ctx, st, study.Transition{Target: study.StatusReportDrafted, Actor: actor})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.studies.RunEffects(out)
	return &Summary{
		ReportID:          rp.ReportID,
		FileName:          rp.FileName,
		ReportStatus:      rp.ReportStatus,
		StudyStatus:       out.Status,
		StudyCategory:     out.Category,
		NextStep:          "draft saved",
		DegradedOwnership: own.Degraded,
	}, nil
}

// StoreFinalized signs off the report for the attributed clinician. The
// verification requirement is resolved once, from the lab and doctor flags
// combined with OR, and handed to the workflow coordinator, which decides
// between verification_pending and report_completed. Document rendering
// runs after commit and degrades on failure.
func (s *Service) StoreFinalized(ctx context.Context, studyExternalID string, in ContentInput, format render.Format) (*Summary, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "report body is required")
	}
	if format != "" && !format.Valid() {
		return nil, apperror.Newf(apperror.InvalidArgument, "unsupported output format %q", format)
	}
	actor := auth.UserFromContext(ctx)
	st, err := s.loadAuthorized(ctx, studyExternalID, actor)
	if err != nil {
		return nil, err
	}
	own, err := s.resolveOwner(ctx, actor, st)
	if err != nil {
		return nil, err
	}
	policy, err := s.policy.ResolveVerification(ctx, st.LabID, own.DoctorID)
	if err != nil {
		return nil, err
	}

	var rp *Report
	var out *study.Outcome
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		var err error
		rp, _, err = s.upsertReport(ctx, st, own, actor, in, TypeFinalized, StatusFinalized, FileNameFor(own.DoctorName, st.PatientExternalID))
		if err != nil {
			return err
		}
		note := "report finalized"
		if err := s.appendHistory(ctx, rp, actor, &note); err != nil {
			return err
		}
		st.ReportSummary.Attach(rp.ReportID, string(rp.ReportStatus), string(rp.ReportType))
		out, err = s.studies.TransitionLoaded(ctx, st, study.Transition{
			Target: study.StatusReportFinalized, Actor: actor, Verification: &policy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.studies.RunEffects(out)

	if format.Valid() && s.renderer != nil {
		s.renderAndStore(st, rp, format, actor)
	}

	next := "ready for download"
	if out.VerificationRequired {
		next = "sent to verifier"
	}
	return &Summary{
		ReportID:                     rp.ReportID,
		FileName:                     rp.FileName,
		ReportStatus:                 rp.ReportStatus,
		StudyStatus:                  out.Status,
		StudyCategory:                out.Category,
		VerificationRequired:         out.VerificationRequired,
		CompletedWithoutVerification: out.CompletedWithoutVerification,
		NextStep:                     next,
		DegradedOwnership:            own.Degraded,
	}, nil
}

// renderAndStore produces the export document and records it as a study
// attachment. It runs outside the lifecycle transaction; failures are
// logged and the finalize result stands.
func (s *Service) renderAndStore(st *study.Study, rp *Report, format render.Format, actor auth.User) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	doc, err := s.renderer.Render(ctx, render.Request{
		Template: rp.Content.Template,
		Placeholders: map[string]string{
			"patient_name":        rp.PatientName,
			"patient_id":          st.PatientExternalID,
			"doctor_name":         rp.DoctorName,
			"study_id":            st.ExternalID,
			"referring_physician": rp.ReferringPhysician,
			"body":                rp.Content.Body,
		},
		Images: rp.Content.Images,
		Format: format,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("report", rp.ReportID).Msg("document rendering failed, report finalized without export")
		return
	}

	fileName := rp.FileName + "." + string(format)
	key := blobstore.ObjectKey(st.TenantID, st.ExternalID, fileName)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(doc.Content), int64(len(doc.Content)), doc.ContentType); err != nil {
		s.logger.Warn().Err(err).Str("report", rp.ReportID).Msg("storing rendered document failed")
		return
	}
	if s.sink == nil {
		return
	}
	err = db.WithTenant(ctx, s.pool, st.TenantID, func(ctx context.Context) error {
		return s.sink.RecordRendered(ctx, RenderedDocument{
			Study:       st,
			FileName:    fileName,
			Key:         key,
			ContentType: doc.ContentType,
			Size:        int64(len(doc.Content)),
			UploadedBy:  actor.ID,
		})
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("report", rp.ReportID).Msg("recording rendered attachment failed")
	}
}

// Verify approves a finalized report and completes the study workflow.
func (s *Service) Verify(ctx context.Context, reportID string, corrections *string) (*Summary, error) {
	actor := auth.UserFromContext(ctx)
	rp, err := s.getAuthorized(ctx, reportID, actor)
	if err != nil {
		return nil, err
	}
	if rp.ReportStatus != StatusFinalized {
		return nil, apperror.Newf(apperror.Conflict, "report is %s, not awaiting verification", rp.ReportStatus)
	}
	st, err := s.studies.GetStudy(ctx, rp.StudyExternalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var vout, out *study.Outcome
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		rp.ReportStatus = StatusVerified
		rp.Verification.Status = "verified"
		rp.Verification.VerifiedBy = &actor.ID
		rp.Verification.VerifiedByName = &actor.FullName
		rp.Verification.VerifiedAt = &now
		rp.Verification.History = append(rp.Verification.History, VerificationEntry{
			Action: "verified", By: actor.ID, ByName: actor.FullName, At: now, Corrections: corrections,
		})
		if err := s.repo.Update(ctx, rp); err != nil {
			return apperror.Wrap(apperror.Internal, "update report", err)
		}
		note := "report verified"
		if err := s.appendHistory(ctx, rp, actor, &note); err != nil {
			return err
		}
		st.ReportSummary.Attach(rp.ReportID, string(rp.ReportStatus), string(rp.ReportType))
		var err error
		vout, err = s.studies.TransitionLoaded(ctx, st, study.Transition{Target: study.StatusReportVerified, Actor: actor})
		if err != nil {
			return err
		}
		out, err = s.studies.TransitionLoaded(ctx, st, study.Transition{Target: study.StatusReportCompleted, Actor: actor})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.studies.RunEffects(vout, out)
	return &Summary{
		ReportID:      rp.ReportID,
		FileName:      rp.FileName,
		ReportStatus:  rp.ReportStatus,
		StudyStatus:   out.Status,
		StudyCategory: out.Category,
		NextStep:      "ready for download",
	}, nil
}

// Reject returns a finalized report to its author with a reason. The study
// reverts to the radiologist's queue.
func (s *Service) Reject(ctx context.Context, reportID, reason string) (*Summary, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "a rejection reason is required")
	}
	actor := auth.UserFromContext(ctx)
	rp, err := s.getAuthorized(ctx, reportID, actor)
	if err != nil {
		return nil, err
	}
	if rp.ReportStatus != StatusFinalized {
		return nil, apperror.Newf(apperror.Conflict, "report is %s, not awaiting verification", rp.ReportStatus)
	}
	st, err := s.studies.GetStudy(ctx, rp.StudyExternalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var rout, out *study.Outcome
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		rp.ReportStatus = StatusRejected
		rp.Verification.Status = "rejected"
		rp.Verification.RejectionReason = &reason
		rp.Verification.History = append(rp.Verification.History, VerificationEntry{
			Action: "rejected", By: actor.ID, ByName: actor.FullName, At: now, Reason: &reason,
		})
		if err := s.repo.Update(ctx, rp); err != nil {
			return apperror.Wrap(apperror.Internal, "update report", err)
		}
		if err := s.appendHistory(ctx, rp, actor, &reason); err != nil {
			return err
		}
		st.ReportSummary.Attach(rp.ReportID, string(rp.ReportStatus), string(rp.ReportType))
		var err error
		rout, err = s.studies.TransitionLoaded(ctx, st, study.Transition{Target: study.StatusReportRejected, Actor: actor, Note: &reason})
		if err != nil {
			return err
		}
		out, err = s.studies.TransitionLoaded(ctx, st, study.Transition{Target: study.StatusRevertToRadiologist, Actor: actor})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.studies.RunEffects(rout, out)
	return &Summary{
		ReportID:      rp.ReportID,
		FileName:      rp.FileName,
		ReportStatus:  rp.ReportStatus,
		StudyStatus:   out.Status,
		StudyCategory: out.Category,
		NextStep:      "returned to radiologist",
	}, nil
}

// RecordDownload bumps the download counter and stamps the study's first
// download timestamp.
func (s *Service) RecordDownload(ctx context.Context, reportID string) (*Report, error) {
	return s.recordUsage(ctx, reportID, study.StatusReportDownloaded, func(rp *Report, actor auth.User, now time.Time) {
		rp.Downloads.Record(actor.ID, actor.FullName, now)
	})
}

// RecordPrint bumps the print counter.
func (s *Service) RecordPrint(ctx context.Context, reportID string) (*Report, error) {
	return s.recordUsage(ctx, reportID, study.StatusReportPrinted, func(rp *Report, actor auth.User, now time.Time) {
		rp.Prints.Record(actor.ID, actor.FullName, now)
	})
}

func (s *Service) recordUsage(ctx context.Context, reportID string, target study.Status, record func(*Report, auth.User, time.Time)) (*Report, error) {
	actor := auth.UserFromContext(ctx)
	rp, err := s.getAuthorized(ctx, reportID, actor)
	if err != nil {
		return nil, err
	}
	st, err := s.studies.GetStudy(ctx, rp.StudyExternalID)
	if err != nil {
		return nil, err
	}
	var out *study.Outcome
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		record(rp, actor, time.Now().UTC())
		if err := s.repo.Update(ctx, rp); err != nil {
			return apperror.Wrap(apperror.Internal, "update report", err)
		}
		var err error
		out, err = s.studies.TransitionLoaded(ctx, st, study.Transition{Target: target, Actor: actor})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.studies.RunEffects(out)
	return rp, nil
}

func (s *Service) getAuthorized(ctx context.Context, reportID string, actor auth.User) (*Report, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "report id is required")
	}
	rp, err := s.repo.GetByReportID(ctx, reportID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "report not found")
	}
	if err != nil {
		return nil, err
	}
	if actor.TenantID != "" && rp.TenantID != "" && rp.TenantID != actor.TenantID {
		return nil, apperror.New(apperror.PermissionDenied, "report belongs to a different organization")
	}
	return rp, nil
}

func (s *Service) Get(ctx context.Context, reportID string) (*Report, error) {
	return s.getAuthorized(ctx, reportID, auth.UserFromContext(ctx))
}

// Latest returns the study's most recent report.
func (s *Service) Latest(ctx context.Context, studyExternalID string) (*Report, error) {
	actor := auth.UserFromContext(ctx)
	st, err := s.loadAuthorized(ctx, studyExternalID, actor)
	if err != nil {
		return nil, err
	}
	rp, err := s.repo.LatestForStudy(ctx, st.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "study has no reports")
	}
	return rp, err
}

func (s *Service) ListByStudy(ctx context.Context, studyExternalID string) ([]*Report, error) {
	actor := auth.UserFromContext(ctx)
	st, err := s.loadAuthorized(ctx, studyExternalID, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByStudy(ctx, st.ID)
}

func (s *Service) StatusHistory(ctx context.Context, reportID string) ([]*StatusEntry, error) {
	rp, err := s.getAuthorized(ctx, reportID, auth.UserFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return s.repo.ListStatusHistory(ctx, rp.ID)
}

// VerificationHistory returns the verifier audit trail.
func (s *Service) VerificationHistory(ctx context.Context, reportID string) ([]VerificationEntry, error) {
	rp, err := s.getAuthorized(ctx, reportID, auth.UserFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return rp.Verification.History, nil
}

func (s *Service) appendHistory(ctx context.Context, rp *Report, actor auth.User, note *string) error {
	err := s.repo.AppendStatusHistory(ctx, &StatusEntry{
		ReportRef: rp.ID,
		Status:    rp.ReportStatus,
		ChangedBy: actor.ID,
		ChangedAt: time.Now().UTC(),
		Note:      note,
	})
	if err != nil {
		return apperror.Wrap(apperror.Internal, "append report history", err)
	}
	return nil
}
