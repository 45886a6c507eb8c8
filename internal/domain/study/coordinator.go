package study

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/raypacs/raypacs/internal/domain/admin"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/db"
)

// patientPropagationTimeout bounds the best-effort patient status update.
// Exceeding it logs a warning and never fails the workflow operation.
const patientPropagationTimeout = 3 * time.Second

// PatientStatusWriter mirrors the denormalized workflow status onto the
// patient record.
type PatientStatusWriter interface {
	SetWorkflowStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Transition is one workflow event applied to a study. Target names the
// requested status; report_finalized additionally resolves through the
// verification policy carried in Verification.
type Transition struct {
	Target       Status
	Actor        auth.User
	Note         *string
	Verification *admin.VerificationRequirement
}

// Outcome reports where a transition actually landed after policy
// resolution. It also carries the transition's deferred effects; callers
// flush them through RunEffects once their transaction has committed.
type Outcome struct {
	Status                       Status   `json:"status"`
	Category                     Category `json:"category"`
	VerificationRequired         bool     `json:"verification_required"`
	CompletedWithoutVerification bool     `json:"completed_without_verification"`

	studyRef string
	effects  []effect
}

// Coordinator owns the workflow state machine. It mutates the study
// aggregate and appends status history. Non-critical side updates are
// collected on the Outcome and must not run while the caller still holds
// an open transaction; RunEffects executes them afterwards, each inside
// its own timeout boundary.
type Coordinator struct {
	repo     Repository
	patients PatientStatusWriter
	logger   zerolog.Logger
	inTenant func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

func NewCoordinator(repo Repository, patients PatientStatusWriter, pool *pgxpool.Pool, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		repo:     repo,
		patients: patients,
		logger:   logger,
		inTenant: func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
			return db.WithTenant(ctx, pool, tenantID, fn)
		},
	}
}

// effect is a non-critical side update that runs after the primary state
// has been persisted. Failures are logged, never returned.
type effect struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

// Apply validates and executes a workflow transition. An unrecognized
// target is rejected before any mutation. A persistence failure on the
// study aggregate aborts the operation so a wrapping transaction can roll
// back the caller's side too.
func (c *Coordinator) Apply(ctx context.Context, st *Study, t Transition) (*Outcome, error) {
	if !KnownStatus(t.Target) {
		return nil, apperror.Newf(apperror.InvalidArgument, "unknown workflow status %q", t.Target)
	}

	now := time.Now().UTC()
	target := t.Target
	note := t.Note
	out := &Outcome{}

	if target == StatusReportFinalized {
		stampOnce(&st.ReportInfo.FinalizedAt, now)
		if t.Verification != nil && t.Verification.Required() {
			out.VerificationRequired = true
			target = StatusVerificationPending
		} else {
			target = StatusReportCompleted
			st.CompletedWithoutVerification = true
			out.CompletedWithoutVerification = true
			if note == nil {
				n := "completed without verification"
				note = &n
			}
		}
	}

	switch target {
	case StatusReportDrafted:
		stampOnce(&st.ReportInfo.DraftedAt, now)
	case StatusVerificationPending:
		stampOnce(&st.ReportInfo.SentForVerificationAt, now)
	case StatusReportCompleted:
		stampOnce(&st.ReportInfo.CompletedAt, now)
	case StatusReportDownloaded, StatusReportPrinted:
		stampOnce(&st.ReportInfo.FirstDownloadedAt, now)
	}

	st.WorkflowStatus = target
	st.CurrentCategory = CategoryOf(target)
	st.UpdatedAt = now

	if err := c.repo.Update(ctx, st); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "persist study workflow state", err)
	}
	entry := &StatusEntry{
		StudyID:       st.ID,
		Status:        target,
		ChangedBy:     t.Actor.ID,
		ChangedByName: t.Actor.FullName,
		ChangedAt:     now,
		Note:          note,
	}
	if err := c.repo.AppendStatus(ctx, entry); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "append status history", err)
	}

	out.Status = target
	out.Category = st.CurrentCategory
	out.studyRef = st.ExternalID
	out.effects = c.effectsFor(st, target)
	return out, nil
}

// RunEffects flushes the effects deferred on the given outcomes. Call it
// only after the transaction that produced them has committed; on rollback
// simply drop the outcomes.
func (c *Coordinator) RunEffects(outcomes ...*Outcome) {
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		c.runEffects(out.studyRef, out.effects)
		out.effects = nil
	}
}

// stampOnce sets a denormalized timestamp only on the first transition into
// the corresponding status.
func stampOnce(field **time.Time, now time.Time) {
	if *field == nil {
		ts := now
		*field = &ts
	}
}

func (c *Coordinator) effectsFor(st *Study, target Status) []effect {
	var effects []effect
	if c.patients != nil && st.PatientID != nil {
		patientID := *st.PatientID
		tenantID := st.TenantID
		effects = append(effects, effect{
			name:    "patient_status_propagation",
			timeout: patientPropagationTimeout,
			run: func(ctx context.Context) error {
				return c.inTenant(ctx, tenantID, func(ctx context.Context) error {
					return c.patients.SetWorkflowStatus(ctx, patientID, string(target))
				})
			},
		})
	}
	return effects
}

// runEffects executes post-commit effects on a fresh context so a canceled
// request cannot starve them, each under its own deadline.
func (c *Coordinator) runEffects(studyRef string, effects []effect) {
	for _, e := range effects {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		if err := e.run(ctx); err != nil {
			c.logger.Warn().Err(err).
				Str("effect", e.name).
				Str("study", studyRef).
				Msg("post-commit effect failed")
		}
		cancel()
	}
}
