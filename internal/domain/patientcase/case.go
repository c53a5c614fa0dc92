// internal/domain/patientcase/case.go
package patientcase

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Case is the owning aggregate of a treatment plan. It is managed by an
// external system; this service reads its notification recipients and flips
// the plan-created flag when a plan is generated or discarded.
// Corresponds to the 'patient_cases' table.
type Case struct {
	ID              uuid.UUID
	PatientChatID   int64
	ClinicianChatID sql.NullInt64 // a case may have no clinician assigned yet
	PlanCreated     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
