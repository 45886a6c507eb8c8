package report

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/raypacs/raypacs/internal/domain/admin"
	"github.com/raypacs/raypacs/internal/domain/study"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/db"
)

// -- Mock repositories --

type memStudyRepo struct {
	studies     map[uuid.UUID]*study.Study
	history     map[uuid.UUID][]*study.StatusEntry
	assignments map[uuid.UUID][]*study.Assignment
}

func newMemStudyRepo() *memStudyRepo {
	return &memStudyRepo{
		studies:     make(map[uuid.UUID]*study.Study),
		history:     make(map[uuid.UUID][]*study.StatusEntry),
		assignments: make(map[uuid.UUID][]*study.Assignment),
	}
}

func (m *memStudyRepo) Create(_ context.Context, st *study.Study) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	cp := *st
	m.studies[st.ID] = &cp
	return nil
}

func (m *memStudyRepo) GetByID(_ context.Context, id uuid.UUID) (*study.Study, error) {
	st, ok := m.studies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *st
	return &cp, nil
}

func (m *memStudyRepo) GetByExternalID(_ context.Context, externalID string) (*study.Study, error) {
	for _, st := range m.studies {
		if st.ExternalID == externalID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStudyRepo) Update(_ context.Context, st *study.Study) error {
	if _, ok := m.studies[st.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *st
	m.studies[st.ID] = &cp
	return nil
}

func (m *memStudyRepo) List(_ context.Context, category study.Category, limit, offset int) ([]*study.Study, int, error) {
	var items []*study.Study
	for _, st := range m.studies {
		if category != "" && st.CurrentCategory != category {
			continue
		}
		cp := *st
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *memStudyRepo) AppendStatus(_ context.Context, e *study.StatusEntry) error {
	cp := *e
	m.history[e.StudyID] = append(m.history[e.StudyID], &cp)
	return nil
}

func (m *memStudyRepo) ListStatusHistory(_ context.Context, studyID uuid.UUID) ([]*study.StatusEntry, error) {
	return m.history[studyID], nil
}

func (m *memStudyRepo) AppendAssignment(_ context.Context, a *study.Assignment) error {
	cp := *a
	m.assignments[a.StudyID] = append(m.assignments[a.StudyID], &cp)
	return nil
}

func (m *memStudyRepo) LatestAssignment(_ context.Context, studyID uuid.UUID) (*study.Assignment, error) {
	list := m.assignments[studyID]
	if len(list) == 0 {
		return nil, pgx.ErrNoRows
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (m *memStudyRepo) ListAssignments(_ context.Context, studyID uuid.UUID) ([]*study.Assignment, error) {
	return m.assignments[studyID], nil
}

func (m *memStudyRepo) AppendCopiedTo(_ context.Context, studyID uuid.UUID, copyExternalID string) error {
	st, ok := m.studies[studyID]
	if !ok {
		return pgx.ErrNoRows
	}
	st.CopiedTo = append(st.CopiedTo, copyExternalID)
	return nil
}

type memReportRepo struct {
	reports         map[uuid.UUID]*Report
	history         map[uuid.UUID][]*StatusEntry
	conflictOnce    bool
	staleLatestOnce bool
	createdSerial   int
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		reports: make(map[uuid.UUID]*Report),
		history: make(map[uuid.UUID][]*StatusEntry),
	}
}

func (m *memReportRepo) Create(_ context.Context, rp *Report) error {
	if m.conflictOnce {
		m.conflictOnce = false
		return apperror.New(apperror.Conflict, "report id already exists")
	}
	if rp.ID == uuid.Nil {
		rp.ID = uuid.New()
	}
	m.createdSerial++
	rp.CreatedAt = time.Now().UTC().Add(time.Duration(m.createdSerial) * time.Millisecond)
	cp := *rp
	m.reports[rp.ID] = &cp
	return nil
}

func (m *memReportRepo) GetByReportID(_ context.Context, reportID string) (*Report, error) {
	for _, rp := range m.reports {
		if rp.ReportID == reportID {
			cp := *rp
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memReportRepo) Update(_ context.Context, rp *Report) error {
	if _, ok := m.reports[rp.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *rp
	m.reports[rp.ID] = &cp
	return nil
}

func (m *memReportRepo) LatestForPair(_ context.Context, studyID uuid.UUID, doctorID string) (*Report, error) {
	if m.staleLatestOnce {
		m.staleLatestOnce = false
		return nil, pgx.ErrNoRows
	}
	var latest *Report
	for _, rp := range m.reports {
		if rp.StudyID != studyID || rp.DoctorID != doctorID {
			continue
		}
		if latest == nil || rp.CreatedAt.After(latest.CreatedAt) {
			latest = rp
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (m *memReportRepo) LatestForStudy(_ context.Context, studyID uuid.UUID) (*Report, error) {
	var latest *Report
	for _, rp := range m.reports {
		if rp.StudyID != studyID {
			continue
		}
		if latest == nil || rp.CreatedAt.After(latest.CreatedAt) {
			latest = rp
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (m *memReportRepo) ListByStudy(_ context.Context, studyID uuid.UUID) ([]*Report, error) {
	var items []*Report
	for _, rp := range m.reports {
		if rp.StudyID == studyID {
			cp := *rp
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (m *memReportRepo) AppendStatusHistory(_ context.Context, e *StatusEntry) error {
	cp := *e
	entries := append(m.history[e.ReportRef], &cp)
	if len(entries) > HistoryCap {
		entries = entries[len(entries)-HistoryCap:]
	}
	m.history[e.ReportRef] = entries
	return nil
}

func (m *memReportRepo) ListStatusHistory(_ context.Context, reportRef uuid.UUID) ([]*StatusEntry, error) {
	return m.history[reportRef], nil
}

type mockPolicy struct {
	labRequires    bool
	doctorRequires bool
}

func (m *mockPolicy) ResolveVerification(_ context.Context, _ *uuid.UUID, _ string) (admin.VerificationRequirement, error) {
	return admin.VerificationRequirement{LabRequires: m.labRequires, DoctorRequires: m.doctorRequires}, nil
}

// -- Fixture --

type fixture struct {
	svc        *Service
	reports    *memReportRepo
	studyRepo  *memStudyRepo
	studySvc   *study.Service
	policy     *mockPolicy
	studyState *study.Study
}

type fakeTx struct{ pgx.Tx }

func actorCtx(u auth.User) context.Context {
	ctx := context.WithValue(context.Background(), db.DBTxKey, pgx.Tx(fakeTx{}))
	ctx = context.WithValue(ctx, auth.UserIDKey, u.ID)
	ctx = context.WithValue(ctx, auth.UserRoleKey, u.Role)
	ctx = context.WithValue(ctx, auth.UserNameKey, u.FullName)
	return context.WithValue(ctx, db.TenantIDKey, u.TenantID)
}

func radiologist() auth.User {
	return auth.User{ID: "doc-1", Role: auth.RoleRadiologist, TenantID: "acme", FullName: "Dr. Rao"}
}

func administrator() auth.User {
	return auth.User{ID: "admin-1", Role: auth.RoleAdmin, TenantID: "acme", FullName: "Site Admin"}
}

func verifier() auth.User {
	return auth.User{ID: "ver-1", Role: auth.RoleVerifier, TenantID: "acme", FullName: "Dr. Iyer"}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	studyRepo := newMemStudyRepo()
	coord := study.NewCoordinator(studyRepo, nil, nil, zerolog.Nop())
	studySvc := study.NewService(studyRepo, coord, nil, nil, nil)

	patientID := uuid.New()
	st := &study.Study{
		ExternalID:        "STD-acme-001",
		TenantID:          "acme",
		PatientID:         &patientID,
		PatientExternalID: "PAT-100",
		PatientName:       "Asha Verma",
		WorkflowStatus:    study.StatusReportInProgress,
		CurrentCategory:   study.CategoryInProgress,
	}
	studyRepo.Create(context.Background(), st)

	reports := newMemReportRepo()
	policy := &mockPolicy{}
	svc := NewService(reports, studySvc, policy, nil, nil, nil, nil, zerolog.Nop())
	return &fixture{svc: svc, reports: reports, studyRepo: studyRepo, studySvc: studySvc, policy: policy, studyState: st}
}

func draftInput(body string) ContentInput {
	return ContentInput{Body: body, Template: "ct-chest"}
}

// -- Tests --

func TestStoreDraft_CreatesReport(t *testing.T) {
	f := newFixture(t)

	sum, err := f.svc.StoreDraft(actorCtx(radiologist()), "STD-acme-001", draftInput("lungs clear"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(sum.ReportID, "RPT-") {
		t.Errorf("expected RPT- prefix, got %s", sum.ReportID)
	}
	if sum.ReportStatus != StatusDraft {
		t.Errorf("expected draft status, got %s", sum.ReportStatus)
	}
	if sum.StudyStatus != study.StatusReportDrafted {
		t.Errorf("expected report_drafted, got %s", sum.StudyStatus)
	}

	st, _ := f.studyRepo.GetByExternalID(context.Background(), "STD-acme-001")
	if !st.ReportSummary.HasReports || st.ReportSummary.ReportCount != 1 {
		t.Errorf("study summary not updated: %+v", st.ReportSummary)
	}
	if st.ReportInfo.DraftedAt == nil {
		t.Error("expected drafted_at stamped on the study")
	}
}

func TestStoreDraft_EmptyBodyRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StoreDraft(actorCtx(radiologist()), "STD-acme-001", draftInput("   "))
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
	if len(f.reports.reports) != 0 {
		t.Error("no report should exist after a rejected draft")
	}
}

func TestStoreDraft_TenantMismatchDenied(t *testing.T) {
	f := newFixture(t)

	outsider := auth.User{ID: "doc-9", Role: auth.RoleRadiologist, TenantID: "other", FullName: "Dr. X"}
	_, err := f.svc.StoreDraft(actorCtx(outsider), "STD-acme-001", draftInput("text"))
	if apperror.KindOf(err) != apperror.PermissionDenied {
		t.Errorf("expected PermissionDenied, got %v", err)
	}
}

func TestStoreDraft_AtMostOneReportPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx(radiologist())

	first, err := f.svc.StoreDraft(ctx, "STD-acme-001", draftInput("first findings"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.svc.StoreDraft(ctx, "STD-acme-001", draftInput("second findings with more words"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ReportID != second.ReportID {
		t.Errorf("second draft created a new report: %s vs %s", first.ReportID, second.ReportID)
	}
	if len(f.reports.reports) != 1 {
		t.Fatalf("expected 1 report record, got %d", len(f.reports.reports))
	}
	for _, rp := range f.reports.reports {
		if rp.Content.Body != "second findings with more words" {
			t.Errorf("expected latest content, got %q", rp.Content.Body)
		}
		if rp.Content.Stats.WordCount != 5 {
			t.Errorf("expected stats recomputed, got %d words", rp.Content.Stats.WordCount)
		}
	}
}

func TestStoreDraft_AdminAttributesToAssignedClinician(t *testing.T) {
	f := newFixture(t)
	f.studyRepo.AppendAssignment(context.Background(), &study.Assignment{
		StudyID: f.studyState.ID, AssignedTo: "doc-7", AssignedToName: "Dr. Mehta",
		AssignedBy: "admin-1", AssignedAt: time.Now(),
	})

	sum, err := f.svc.StoreDraft(actorCtx(administrator()), "STD-acme-001", draftInput("text"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.DegradedOwnership {
		t.Error("attribution should not be degraded when an assignment exists")
	}
	rp, _ := f.reports.GetByReportID(context.Background(), sum.ReportID)
	if rp.DoctorID != "doc-7" || rp.DoctorName != "Dr. Mehta" {
		t.Errorf("expected attribution to assigned clinician, got %s/%s", rp.DoctorID, rp.DoctorName)
	}
	if rp.CreatedBy != "admin-1" {
		t.Errorf("expected created_by to record the acting admin, got %s", rp.CreatedBy)
	}
}

func TestStoreDraft_AdminWithoutAssignmentIsDegraded(t *testing.T) {
	f := newFixture(t)

	sum, err := f.svc.StoreDraft(actorCtx(administrator()), "STD-acme-001", draftInput("text"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.DegradedOwnership {
		t.Error("expected degraded ownership marker")
	}
	rp, _ := f.reports.GetByReportID(context.Background(), sum.ReportID)
	if rp.DoctorID != "admin-1" {
		t.Errorf("expected fallback to the acting admin, got %s", rp.DoctorID)
	}
	if !rp.DegradedOwnership {
		t.Error("expected degraded marker persisted on the report")
	}
}

func TestDraftThenFinalize_PreservesIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx(radiologist())

	draft, err := f.svc.StoreDraft(ctx, "STD-acme-001", draftInput("findings A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var draftCreatedAt time.Time
	for _, rp := range f.reports.reports {
		draftCreatedAt = rp.CreatedAt
	}

	final, err := f.svc.StoreFinalized(ctx, "STD-acme-001", draftInput("findings A final"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.ReportID != draft.ReportID {
		t.Errorf("finalize changed report identity: %s vs %s", final.ReportID, draft.ReportID)
	}
	if len(f.reports.reports) != 1 {
		t.Fatalf("expected 1 report record, got %d", len(f.reports.reports))
	}
	for _, rp := range f.reports.reports {
		if !rp.CreatedAt.Equal(draftCreatedAt) {
			t.Error("finalize changed creation timestamp")
		}
		if rp.ReportType != TypeFinalized || rp.ReportStatus != StatusFinalized {
			t.Errorf("expected finalized record, got %s/%s", rp.ReportType, rp.ReportStatus)
		}
	}
}

func TestFinalize_NoVerificationCompletes(t *testing.T) {
	f := newFixture(t)

	sum, err := f.svc.StoreFinalized(actorCtx(radiologist()), "STD-acme-001", draftInput("findings"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.StudyStatus != study.StatusReportCompleted {
		t.Errorf("expected report_completed, got %s", sum.StudyStatus)
	}
	if sum.VerificationRequired {
		t.Error("did not expect verification")
	}
	if !sum.CompletedWithoutVerification {
		t.Error("expected completed-without-verification marker")
	}
	if sum.NextStep != "ready for download" {
		t.Errorf("unexpected next step %q", sum.NextStep)
	}
}

func TestFinalize_VerificationRequiredRoutesToVerifier(t *testing.T) {
	tests := []struct {
		name           string
		labRequires    bool
		doctorRequires bool
	}{
		{"lab only", true, false},
		{"doctor only", false, true},
		{"both", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.policy.labRequires = tt.labRequires
			f.policy.doctorRequires = tt.doctorRequires

			sum, err := f.svc.StoreFinalized(actorCtx(radiologist()), "STD-acme-001", draftInput("findings"), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sum.StudyStatus != study.StatusVerificationPending {
				t.Errorf("expected verification_pending, got %s", sum.StudyStatus)
			}
			if !sum.VerificationRequired {
				t.Error("expected VerificationRequired")
			}
			if sum.NextStep != "sent to verifier" {
				t.Errorf("unexpected next step %q", sum.NextStep)
			}
		})
	}
}

func TestFinalize_FileNameUsesOwnerNotActor(t *testing.T) {
	f := newFixture(t)
	f.studyRepo.AppendAssignment(context.Background(), &study.Assignment{
		StudyID: f.studyState.ID, AssignedTo: "doc-7", AssignedToName: "Dr. Mehta",
		AssignedBy: "admin-1", AssignedAt: time.Now(),
	})

	sum, err := f.svc.StoreFinalized(actorCtx(administrator()), "STD-acme-001", draftInput("findings"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(sum.FileName, "Dr__Mehta") {
		t.Errorf("expected file name derived from the owning clinician, got %s", sum.FileName)
	}
}

func TestStoreDraft_InterleavedWritersLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx(radiologist())

	if _, err := f.svc.StoreDraft(ctx, "STD-acme-001", draftInput("first writer findings")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The second writer read before the first one committed: its existence
	// check misses and its insert collides with the first writer's row.
	f.reports.staleLatestOnce = true
	f.reports.conflictOnce = true
	sum, err := f.svc.StoreDraft(ctx, "STD-acme-001", draftInput("second writer findings"))
	if err != nil {
		t.Fatalf("expected the losing insert to fall back to an update, got %v", err)
	}
	if len(f.reports.reports) != 1 {
		t.Fatalf("expected 1 surviving report, got %d", len(f.reports.reports))
	}
	for _, rp := range f.reports.reports {
		if rp.Content.Body != "second writer findings" {
			t.Errorf("expected the second writer's content to win, got %q", rp.Content.Body)
		}
		if rp.ReportID != sum.ReportID {
			t.Errorf("summary names %s but stored report is %s", sum.ReportID, rp.ReportID)
		}
	}
}

func TestFinalize_ConflictRegeneratesOnce(t *testing.T) {
	f := newFixture(t)
	f.reports.conflictOnce = true

	sum, err := f.svc.StoreDraft(actorCtx(radiologist()), "STD-acme-001", draftInput("findings"))
	if err != nil {
		t.Fatalf("expected regeneration to succeed, got %v", err)
	}
	if sum.ReportID == "" {
		t.Error("expected a report id after regeneration")
	}
	if len(f.reports.reports) != 1 {
		t.Errorf("expected 1 report, got %d", len(f.reports.reports))
	}
}

func TestVerify_CompletesStudy(t *testing.T) {
	f := newFixture(t)
	f.policy.doctorRequires = true
	ctx := actorCtx(radiologist())

	sum, err := f.svc.StoreFinalized(ctx, "STD-acme-001", draftInput("findings"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vsum, err := f.svc.Verify(actorCtx(verifier()), sum.ReportID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vsum.ReportStatus != StatusVerified {
		t.Errorf("expected verified, got %s", vsum.ReportStatus)
	}
	if vsum.StudyStatus != study.StatusReportCompleted {
		t.Errorf("expected report_completed, got %s", vsum.StudyStatus)
	}

	rp, _ := f.reports.GetByReportID(context.Background(), sum.ReportID)
	if len(rp.Verification.History) != 1 || rp.Verification.History[0].Action != "verified" {
		t.Errorf("expected one verification entry, got %+v", rp.Verification.History)
	}
	if rp.Verification.VerifiedBy == nil || *rp.Verification.VerifiedBy != "ver-1" {
		t.Error("verifier identity not recorded")
	}
}

func TestVerify_RequiresFinalizedReport(t *testing.T) {
	f := newFixture(t)
	sum, err := f.svc.StoreDraft(actorCtx(radiologist()), "STD-acme-001", draftInput("findings"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = f.svc.Verify(actorCtx(verifier()), sum.ReportID, nil)
	if apperror.KindOf(err) != apperror.Conflict {
		t.Errorf("expected Conflict for a draft report, got %v", err)
	}
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reject(actorCtx(verifier()), "RPT-any", "  ")
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestReject_RevertsStudyToRadiologist(t *testing.T) {
	f := newFixture(t)
	f.policy.labRequires = true

	sum, err := f.svc.StoreFinalized(actorCtx(radiologist()), "STD-acme-001", draftInput("findings"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rsum, err := f.svc.Reject(actorCtx(verifier()), sum.ReportID, "missing measurements")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsum.ReportStatus != StatusRejected {
		t.Errorf("expected rejected, got %s", rsum.ReportStatus)
	}
	if rsum.StudyStatus != study.StatusRevertToRadiologist {
		t.Errorf("expected revert_to_radiologist, got %s", rsum.StudyStatus)
	}
	if rsum.StudyCategory != study.CategoryInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", rsum.StudyCategory)
	}

	rp, _ := f.reports.GetByReportID(context.Background(), sum.ReportID)
	if rp.Verification.RejectionReason == nil || *rp.Verification.RejectionReason != "missing measurements" {
		t.Error("rejection reason not recorded")
	}
	last := rp.Verification.History[len(rp.Verification.History)-1]
	if last.Action != "rejected" || last.Reason == nil {
		t.Errorf("expected rejection entry in verification history, got %+v", last)
	}
}

func TestRecordDownload_CountsAndStampsStudy(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx(radiologist())

	sum, err := f.svc.StoreFinalized(ctx, "STD-acme-001", draftInput("findings"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.RecordDownload(ctx, sum.ReportID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rp, err := f.svc.RecordDownload(ctx, sum.ReportID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rp.Downloads.Count != 2 {
		t.Errorf("expected 2 downloads, got %d", rp.Downloads.Count)
	}
	st, _ := f.studyRepo.GetByExternalID(context.Background(), "STD-acme-001")
	if st.WorkflowStatus != study.StatusReportDownloaded {
		t.Errorf("expected report_downloaded, got %s", st.WorkflowStatus)
	}
	if st.ReportInfo.FirstDownloadedAt == nil {
		t.Error("expected first download stamped on the study")
	}
}

func TestLatest_NotFoundWithoutReports(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Latest(actorCtx(radiologist()), "STD-acme-001")
	if apperror.KindOf(err) != apperror.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestStatusHistory_RecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx(radiologist())

	sum, err := f.svc.StoreDraft(ctx, "STD-acme-001", draftInput("findings"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.StoreFinalized(ctx, "STD-acme-001", draftInput("findings final"), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := f.svc.StatusHistory(ctx, sum.ReportID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].Status != StatusDraft || entries[1].Status != StatusFinalized {
		t.Errorf("unexpected history sequence: %s, %s", entries[0].Status, entries[1].Status)
	}
}
