package study

import (
	"encoding/json"
	"testing"
)

func TestCategoryOf_KnownStatuses(t *testing.T) {
	tests := []struct {
		status Status
		want   Category
	}{
		{StatusNewStudyReceived, CategoryNew},
		{StatusAssignedToDoctor, CategoryAssigned},
		{StatusReportDrafted, CategoryDrafted},
		{StatusReportFinalized, CategoryFinalized},
		{StatusVerificationPending, CategoryVerificationPending},
		{StatusReportCompleted, CategoryCompleted},
		{StatusRevertToRadiologist, CategoryInProgress},
		{StatusReportDownloaded, CategoryCompleted},
		{StatusReportPrinted, CategoryCompleted},
		{StatusArchived, CategoryArchived},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.status); got != tt.want {
			t.Errorf("CategoryOf(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestCategoryOf_UnknownStatusIsCatchAll(t *testing.T) {
	if got := CategoryOf(Status("made_up_status")); got != CategoryUncategorized {
		t.Errorf("expected UNCATEGORIZED, got %s", got)
	}
	if got := CategoryOf(Status("")); got != CategoryUncategorized {
		t.Errorf("expected UNCATEGORIZED for empty status, got %s", got)
	}
}

func TestKnownStatus(t *testing.T) {
	if !KnownStatus(StatusReportFinalized) {
		t.Error("report_finalized should be known")
	}
	if KnownStatus(Status("made_up_status")) {
		t.Error("made_up_status should not be known")
	}
}

func TestKnownCategory(t *testing.T) {
	if !KnownCategory(CategoryInProgress) {
		t.Error("IN_PROGRESS should be known")
	}
	if !KnownCategory(CategoryUncategorized) {
		t.Error("UNCATEGORIZED should be a valid filter")
	}
	if KnownCategory(Category("WHATEVER")) {
		t.Error("WHATEVER should not be known")
	}
}

func TestReferringPhysician_UnmarshalBareString(t *testing.T) {
	var rp ReferringPhysician
	if err := json.Unmarshal([]byte(`"  Dr. Mehta "`), &rp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rp.Name != "Dr. Mehta" {
		t.Errorf("expected trimmed name, got %q", rp.Name)
	}
	if rp.Institution != "" || rp.ContactInfo != "" {
		t.Error("expected empty institution and contact for bare string form")
	}
}

func TestReferringPhysician_UnmarshalObject(t *testing.T) {
	var rp ReferringPhysician
	data := []byte(`{"name":"Dr. Mehta","institution":"City Imaging","contact_info":"555-0101"}`)
	if err := json.Unmarshal(data, &rp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rp.Name != "Dr. Mehta" || rp.Institution != "City Imaging" || rp.ContactInfo != "555-0101" {
		t.Errorf("unexpected decode result: %+v", rp)
	}
}

func TestReportSummary_AttachDeduplicates(t *testing.T) {
	var rs ReportSummary
	rs.Attach("RPT-1", "draft", "draft")
	rs.Attach("RPT-1", "finalized", "finalized")

	if rs.ReportCount != 1 {
		t.Errorf("expected count 1 after re-attach, got %d", rs.ReportCount)
	}
	if rs.LatestReportStatus != "finalized" {
		t.Errorf("expected latest status refreshed, got %s", rs.LatestReportStatus)
	}

	rs.Attach("RPT-2", "draft", "draft")
	if rs.ReportCount != 2 {
		t.Errorf("expected count 2, got %d", rs.ReportCount)
	}
	if rs.LatestReportID != "RPT-2" {
		t.Errorf("expected latest RPT-2, got %s", rs.LatestReportID)
	}
	if !rs.HasReports {
		t.Error("expected HasReports set")
	}
}
