// internal/domain/slot/slot.go
package slot

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a treatment slot. Transitions are
// forward-only: PENDING -> IN_PROGRESS -> OVERDUE. A slot may jump
// straight from PENDING to OVERDUE when its window fully elapsed
// between two scans. OVERDUE is terminal.
type State string

const (
	StatePending    State = "PENDING"
	StateInProgress State = "IN_PROGRESS"
	StateOverdue    State = "OVERDUE"
)

// Slot represents one scheduled step of a patient's treatment plan.
// Corresponds to the 'treatment_slots' table.
type Slot struct {
	ID               uuid.UUID
	CaseID           uuid.UUID
	SequenceNumber   int          // 1-based position within the plan, unique per case
	StartAt          sql.NullTime // NULL until the scheduler assigns a window
	EndAt            sql.NullTime
	State            State
	VerificationCode string // unique single-use token, assigned at creation, immutable
	Verified         bool
	Finalized        bool // set once all required artifacts exist; checked externally
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
