package study

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the fine-grained workflow status of a study. It is event-sourced:
// every change appends to the study's status history.
type Status string

const (
	StatusNoActiveStudy       Status = "no_active_study"
	StatusNewStudyReceived    Status = "new_study_received"
	StatusPendingAssignment   Status = "pending_assignment"
	StatusAssignedToDoctor    Status = "assigned_to_doctor"
	StatusReportInProgress    Status = "report_in_progress"
	StatusReportDrafted       Status = "report_drafted"
	StatusReportFinalized     Status = "report_finalized"
	StatusVerificationPending Status = "verification_pending"
	StatusReportVerified      Status = "report_verified"
	StatusReportCompleted     Status = "report_completed"
	StatusReportRejected      Status = "report_rejected"
	StatusRevertToRadiologist Status = "revert_to_radiologist"
	StatusReportDownloaded    Status = "report_downloaded"
	StatusReportPrinted       Status = "report_printed"
	StatusArchived            Status = "archived"
)

// Category is the coarse display bucket derived from Status, used for
// worklist filtering. It is always a pure function of the workflow status.
type Category string

const (
	CategoryNoActiveStudy       Category = "NO_ACTIVE_STUDY"
	CategoryNew                 Category = "NEW"
	CategoryPendingAssignment   Category = "PENDING_ASSIGNMENT"
	CategoryAssigned            Category = "ASSIGNED"
	CategoryInProgress          Category = "IN_PROGRESS"
	CategoryDrafted             Category = "DRAFTED"
	CategoryFinalized           Category = "FINALIZED"
	CategoryVerificationPending Category = "VERIFICATION_PENDING"
	CategoryVerified            Category = "VERIFIED"
	CategoryCompleted           Category = "COMPLETED"
	CategoryRejected            Category = "REJECTED"
	CategoryArchived            Category = "ARCHIVED"
	CategoryUncategorized       Category = "UNCATEGORIZED"
)

// statusCategories is the fixed status-to-category table. Every status has
// exactly one category.
var statusCategories = map[Status]Category{
	StatusNoActiveStudy:       CategoryNoActiveStudy,
	StatusNewStudyReceived:    CategoryNew,
	StatusPendingAssignment:   CategoryPendingAssignment,
	StatusAssignedToDoctor:    CategoryAssigned,
	StatusReportInProgress:    CategoryInProgress,
	StatusReportDrafted:       CategoryDrafted,
	StatusReportFinalized:     CategoryFinalized,
	StatusVerificationPending: CategoryVerificationPending,
	StatusReportVerified:      CategoryVerified,
	StatusReportCompleted:     CategoryCompleted,
	StatusReportRejected:      CategoryRejected,
	StatusRevertToRadiologist: CategoryInProgress,
	StatusReportDownloaded:    CategoryCompleted,
	StatusReportPrinted:       CategoryCompleted,
	StatusArchived:            CategoryArchived,
}

// CategoryOf derives the display category for a status. Unmapped statuses
// fall into the catch-all bucket rather than failing.
func CategoryOf(s Status) Category {
	if c, ok := statusCategories[s]; ok {
		return c
	}
	return CategoryUncategorized
}

// KnownStatus reports whether s is in the closed status set.
func KnownStatus(s Status) bool {
	_, ok := statusCategories[s]
	return ok
}

var knownCategories = func() map[Category]bool {
	m := map[Category]bool{CategoryUncategorized: true}
	for _, c := range statusCategories {
		m[c] = true
	}
	return m
}()

// KnownCategory reports whether c is a valid worklist filter value.
func KnownCategory(c Category) bool {
	return knownCategories[c]
}

// ReferringPhysician is the normalized referring-physician shape. Source
// systems send either a bare name string or a structured object; UnmarshalJSON
// accepts both so the rest of the code never branches on shape.
type ReferringPhysician struct {
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`
}

func (rp *ReferringPhysician) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		rp.Name = strings.TrimSpace(s)
		rp.Institution = ""
		rp.ContactInfo = ""
		return nil
	}
	type plain ReferringPhysician
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	*rp = ReferringPhysician(p)
	return nil
}

// ReportInfo carries denormalized workflow timestamps. Each is stamped
// exactly once, on the first transition into the corresponding status.
type ReportInfo struct {
	DraftedAt             *time.Time `json:"drafted_at,omitempty"`
	FinalizedAt           *time.Time `json:"finalized_at,omitempty"`
	SentForVerificationAt *time.Time `json:"sent_for_verification_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	FirstDownloadedAt     *time.Time `json:"first_downloaded_at,omitempty"`
}

// ReportSummary is the study's denormalized view of its reports for fast
// listing. The report table remains the source of truth.
type ReportSummary struct {
	HasReports         bool     `json:"has_reports"`
	ReportIDs          []string `json:"report_ids,omitempty"`
	LatestReportID     string   `json:"latest_report_id,omitempty"`
	LatestReportStatus string   `json:"latest_report_status,omitempty"`
	LatestReportType   string   `json:"latest_report_type,omitempty"`
	ReportCount        int      `json:"report_count"`
}

// Attach records a report on the summary, dedup-guarded by report ID, and
// refreshes the latest-report fields.
func (rs *ReportSummary) Attach(reportID, reportStatus, reportType string) {
	found := false
	for _, id := range rs.ReportIDs {
		if id == reportID {
			found = true
			break
		}
	}
	if !found {
		rs.ReportIDs = append(rs.ReportIDs, reportID)
	}
	rs.HasReports = true
	rs.ReportCount = len(rs.ReportIDs)
	rs.LatestReportID = reportID
	rs.LatestReportStatus = reportStatus
	rs.LatestReportType = reportType
}

// Study maps to the study table: one imaging case with its workflow state.
type Study struct {
	ID                           uuid.UUID          `db:"id" json:"id"`
	ExternalID                   string             `db:"external_id" json:"external_id"`
	TenantID                     string             `db:"tenant_id" json:"tenant_id"`
	LabID                        *uuid.UUID         `db:"lab_id" json:"lab_id,omitempty"`
	LabExternalID                *string            `db:"lab_external_id" json:"lab_external_id,omitempty"`
	PatientID                    *uuid.UUID         `db:"patient_id" json:"patient_id,omitempty"`
	PatientExternalID            string             `db:"patient_external_id" json:"patient_external_id"`
	PatientName                  string             `db:"patient_name" json:"patient_name"`
	Modality                     *string            `db:"modality" json:"modality,omitempty"`
	Description                  *string            `db:"description" json:"description,omitempty"`
	StudyDate                    *time.Time         `db:"study_date" json:"study_date,omitempty"`
	SeriesCount                  int                `db:"series_count" json:"series_count"`
	InstanceCount                int                `db:"instance_count" json:"instance_count"`
	ClinicalHistory              *string            `db:"clinical_history" json:"clinical_history,omitempty"`
	ReferringPhysician           ReferringPhysician `db:"referring_physician" json:"referring_physician"`
	WorkflowStatus               Status             `db:"workflow_status" json:"workflow_status"`
	CurrentCategory              Category           `db:"current_category" json:"current_category"`
	ReportInfo                   ReportInfo         `db:"report_info" json:"report_info"`
	ReportSummary                ReportSummary      `db:"report_summary" json:"report_summary"`
	CompletedWithoutVerification bool               `db:"completed_without_verification" json:"completed_without_verification"`
	CopiedFrom                   *string            `db:"copied_from" json:"copied_from,omitempty"`
	CopiedTo                     []string           `db:"copied_to" json:"copied_to,omitempty"`
	CreatedAt                    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt                    time.Time          `db:"updated_at" json:"updated_at"`
}

// StatusEntry is one immutable row of a study's status history.
type StatusEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	StudyID       uuid.UUID `db:"study_id" json:"study_id"`
	Status        Status    `db:"status" json:"status"`
	ChangedBy     string    `db:"changed_by" json:"changed_by"`
	ChangedByName string    `db:"changed_by_name" json:"changed_by_name"`
	ChangedAt     time.Time `db:"changed_at" json:"changed_at"`
	Note          *string   `db:"note" json:"note,omitempty"`
}

// Assignment is one entry of a study's ordered clinician assignment list.
// The most recent entry is authoritative.
type Assignment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	StudyID        uuid.UUID `db:"study_id" json:"study_id"`
	AssignedTo     string    `db:"assigned_to" json:"assigned_to"`
	AssignedToName string    `db:"assigned_to_name" json:"assigned_to_name"`
	AssignedBy     string    `db:"assigned_by" json:"assigned_by"`
	AssignedAt     time.Time `db:"assigned_at" json:"assigned_at"`
}
