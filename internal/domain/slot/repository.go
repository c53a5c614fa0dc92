// internal/domain/slot/repository.go
package slot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence operations for treatment slots.
type Repository interface {
	// CreatePlan inserts the slots of a new plan and flips the owning case's
	// plan-created flag in a single transaction. Fails with the
	// plan-already-exists error when the flag is already set.
	CreatePlan(ctx context.Context, caseID uuid.UUID, slots []*Slot) error
	// DeletePlan removes all slots of a case and clears the plan-created flag.
	DeletePlan(ctx context.Context, caseID uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// GetByVerificationCode performs an exact-match point lookup by code.
	GetByVerificationCode(ctx context.Context, code string) (*Slot, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Slot, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Slot, error)

	// UpdateWindows persists new date assignments for a case's slots
	// transactionally, matched by sequence number.
	UpdateWindows(ctx context.Context, caseID uuid.UUID, windows []Window) error

	// MarkInProgress advances every PENDING slot whose window contains 'now'
	// and returns the ids of the rows actually updated.
	MarkInProgress(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// MarkOverdue advances every PENDING or IN_PROGRESS slot whose window
	// closed before 'now' and returns the ids of the rows actually updated.
	MarkOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	ListPendingStartingBetween(ctx context.Context, from, to time.Time) ([]*Slot, error)
	ListOverdueUnfinalized(ctx context.Context, endedBefore time.Time) ([]*Slot, error)

	MarkVerified(ctx context.Context, id uuid.UUID) error
	MarkFinalized(ctx context.Context, id uuid.UUID) error
}
