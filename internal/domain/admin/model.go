package admin

import (
	"time"

	"github.com/google/uuid"
)

// Lab maps to the lab table. A lab is the organizational unit inside a tenant
// that studies and doctors hang off; its verification flag feeds the report
// workflow.
type Lab struct {
	ID                        uuid.UUID `db:"id" json:"id"`
	ExternalID                string    `db:"external_id" json:"external_id"`
	TenantID                  string    `db:"tenant_id" json:"tenant_id"`
	Name                      string    `db:"name" json:"name"`
	Active                    bool      `db:"active" json:"active"`
	RequireReportVerification bool      `db:"require_report_verification" json:"require_report_verification"`
	AddressLine               *string   `db:"address_line" json:"address_line,omitempty"`
	City                      *string   `db:"city" json:"city,omitempty"`
	State                     *string   `db:"state" json:"state,omitempty"`
	Phone                     *string   `db:"phone" json:"phone,omitempty"`
	Email                     *string   `db:"email" json:"email,omitempty"`
	LogoURL                   *string   `db:"logo_url" json:"logo_url,omitempty"`
	CreatedAt                 time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time `db:"updated_at" json:"updated_at"`
}

// DoctorProfile maps to the doctor_profile table. UserID is the auth subject
// of the clinician; the verification flag is OR-combined with the lab's when
// a finalized report decides whether to route through a verifier.
type DoctorProfile struct {
	ID                        uuid.UUID  `db:"id" json:"id"`
	UserID                    string     `db:"user_id" json:"user_id"`
	TenantID                  string     `db:"tenant_id" json:"tenant_id"`
	FullName                  string     `db:"full_name" json:"full_name"`
	Role                      string     `db:"role" json:"role"`
	LabID                     *uuid.UUID `db:"lab_id" json:"lab_id,omitempty"`
	RequireReportVerification bool       `db:"require_report_verification" json:"require_report_verification"`
	SignatureKey              *string    `db:"signature_key" json:"signature_key,omitempty"`
	Qualification             *string    `db:"qualification" json:"qualification,omitempty"`
	RegistrationNumber        *string    `db:"registration_number" json:"registration_number,omitempty"`
	Active                    bool       `db:"active" json:"active"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`
}

// VerificationRequirement is the resolved pair of verification flags for one
// finalize decision. It is computed once per finalize and passed explicitly
// into the workflow coordinator.
type VerificationRequirement struct {
	LabRequires    bool `json:"lab_requires"`
	DoctorRequires bool `json:"doctor_requires"`
}

// Required reports whether the finalized report must route through a
// verifier. Either flag being set is sufficient.
func (v VerificationRequirement) Required() bool {
	return v.LabRequires || v.DoctorRequires
}
