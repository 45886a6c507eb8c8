package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. This subsystem only carries the stub the
// radiology workflow needs: demographics for report headers plus the last
// workflow status propagated from the patient's active study.
type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	ExternalID         string     `db:"external_id" json:"external_id"`
	TenantID           string     `db:"tenant_id" json:"tenant_id"`
	FullName           string     `db:"full_name" json:"full_name"`
	Sex                *string    `db:"sex" json:"sex,omitempty"`
	BirthDate          *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	LastWorkflowStatus *string    `db:"last_workflow_status" json:"last_workflow_status,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
