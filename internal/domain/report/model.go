package report

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ReportType distinguishes the authoring stage of the document.
type ReportType string

const (
	TypeDraft     ReportType = "draft"
	TypeFinalized ReportType = "finalized"
)

// ReportStatus is the report's own lifecycle state, distinct from the
// study's workflow status.
type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusFinalized ReportStatus = "finalized"
	StatusVerified  ReportStatus = "verified"
	StatusRejected  ReportStatus = "rejected"
	StatusArchived  ReportStatus = "archived"
)

// ContentStats are recomputed from the content on every save.
type ContentStats struct {
	WordCount  int `json:"word_count"`
	CharCount  int `json:"char_count"`
	ImageCount int `json:"image_count"`
}

// Content is the document body with captured images, stored as one jsonb
// column.
type Content struct {
	Body     string            `json:"body"`
	Template string            `json:"template,omitempty"`
	Images   map[string]string `json:"images,omitempty"`
	Stats    ContentStats      `json:"stats"`
}

// ComputeStats refreshes the derived counters from the current body and
// image set.
func (c *Content) ComputeStats() {
	c.Stats = ContentStats{
		WordCount:  len(strings.Fields(c.Body)),
		CharCount:  len([]rune(c.Body)),
		ImageCount: len(c.Images),
	}
}

// VerificationEntry is one immutable row of the verification audit trail.
type VerificationEntry struct {
	Action      string    `json:"action"`
	By          string    `json:"by"`
	ByName      string    `json:"by_name"`
	At          time.Time `json:"at"`
	Reason      *string   `json:"reason,omitempty"`
	Corrections *string   `json:"corrections,omitempty"`
}

// VerificationInfo tracks the verifier review of a finalized report.
type VerificationInfo struct {
	Status          string              `json:"status,omitempty"`
	VerifiedBy      *string             `json:"verified_by,omitempty"`
	VerifiedByName  *string             `json:"verified_by_name,omitempty"`
	VerifiedAt      *time.Time          `json:"verified_at,omitempty"`
	RejectionReason *string             `json:"rejection_reason,omitempty"`
	History         []VerificationEntry `json:"history,omitempty"`
}

// UsageEvent is one download or print occurrence.
type UsageEvent struct {
	By     string    `json:"by"`
	ByName string    `json:"by_name"`
	At     time.Time `json:"at"`
}

// UsageInfo is the counter plus audit trail for downloads or prints.
type UsageInfo struct {
	Count  int          `json:"count"`
	LastAt *time.Time   `json:"last_at,omitempty"`
	Events []UsageEvent `json:"events,omitempty"`
}

// Record appends one usage event and bumps the counter.
func (u *UsageInfo) Record(by, byName string, at time.Time) {
	u.Count++
	ts := at
	u.LastAt = &ts
	u.Events = append(u.Events, UsageEvent{By: by, ByName: byName, At: at})
}

// Report maps to the report table: one versioned diagnostic document tied
// to a (study, clinician) pair. Draft and finalized are the same record
// transitioning in place.
type Report struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	ReportID           string           `db:"report_id" json:"report_id"`
	TenantID           string           `db:"tenant_id" json:"tenant_id"`
	StudyID            uuid.UUID        `db:"study_id" json:"study_id"`
	StudyExternalID    string           `db:"study_external_id" json:"study_external_id"`
	PatientID          *uuid.UUID       `db:"patient_id" json:"patient_id,omitempty"`
	PatientName        string           `db:"patient_name" json:"patient_name"`
	ReferringPhysician string           `db:"referring_physician" json:"referring_physician,omitempty"`
	DoctorID           string           `db:"doctor_id" json:"doctor_id"`
	DoctorName         string           `db:"doctor_name" json:"doctor_name"`
	CreatedBy          string           `db:"created_by" json:"created_by"`
	CreatedByName      string           `db:"created_by_name" json:"created_by_name"`
	DegradedOwnership  bool             `db:"degraded_ownership" json:"degraded_ownership,omitempty"`
	ReportType         ReportType       `db:"report_type" json:"report_type"`
	ReportStatus       ReportStatus     `db:"report_status" json:"report_status"`
	Content            Content          `db:"content" json:"content"`
	FileName           string           `db:"file_name" json:"file_name"`
	Verification       VerificationInfo `db:"verification" json:"verification"`
	Downloads          UsageInfo        `db:"downloads" json:"downloads"`
	Prints             UsageInfo        `db:"prints" json:"prints"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// StatusEntry is one row of a report's own status history. The history is
// capped; the oldest rows are trimmed once the cap is exceeded.
type StatusEntry struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	ReportRef uuid.UUID    `db:"report_ref" json:"report_ref"`
	Status    ReportStatus `db:"status" json:"status"`
	ChangedBy string       `db:"changed_by" json:"changed_by"`
	ChangedAt time.Time    `db:"changed_at" json:"changed_at"`
	Note      *string      `db:"note" json:"note,omitempty"`
}

// FileNameFor derives the stored document name from the attributed
// clinician and the patient reference.
func FileNameFor(doctorName, patientExternalID string) string {
	name := strings.TrimSpace(doctorName)
	if name == "" {
		name = "report"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	return b.String() + "_" + patientExternalID + "_report"
}
