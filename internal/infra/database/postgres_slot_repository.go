// internal/infra/database/postgres_slot_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"treatment_slot_service/internal/domain/slot"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Array and driver registration
)

// Custom errors specific to slot persistence
var ErrSlotNotFound = fmt.Errorf("treatment slot not found")
var ErrPlanAlreadyExists = fmt.Errorf("a treatment plan already exists for this case")
var ErrDuplicateSequence = fmt.Errorf("duplicate slot sequence number for case")
var ErrDuplicateVerificationCode = fmt.Errorf("verification code already in use")

type PostgresSlotRepository struct {
	db *sql.DB
}

func NewPostgresSlotRepository(db *sql.DB) *PostgresSlotRepository {
	return &PostgresSlotRepository{db: db}
}

const slotColumns = `id, case_id, sequence_number, start_at, end_at, state, verification_code, verified, finalized, created_at, updated_at`

// CreatePlan inserts all slots of a new plan and sets the case's plan_created
// flag in one transaction. The flag update is conditional, so a concurrent or
// repeated creation loses the race and gets ErrPlanAlreadyExists instead of a
// second plan.
func (r *PostgresSlotRepository) CreatePlan(ctx context.Context, caseID uuid.UUID, slots []*slot.Slot) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for plan creation: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	res, err := txn.ExecContext(ctx,
		`UPDATE patient_cases SET plan_created = TRUE, updated_at = NOW() WHERE id = $1 AND plan_created = FALSE`,
		caseID)
	if err != nil {
		return fmt.Errorf("error setting plan_created flag for case %s: %w", caseID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading plan_created update result: %w", err)
	}
	if affected == 0 {
		return ErrPlanAlreadyExists
	}

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO treatment_slots
        (id, case_id, sequence_number, start_at, end_at, state, verification_code, verified, finalized, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, NOW(), NOW())`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for plan creation: %w", err)
	}
	defer stmt.Close()

	for _, s := range slots {
		_, err := stmt.ExecContext(ctx, s.ID, s.CaseID, s.SequenceNumber, s.StartAt, s.EndAt, s.State, s.VerificationCode)
		if err != nil {
			if strings.Contains(err.Error(), "case_sequence_unique") {
				return fmt.Errorf("error inserting slot %d for case %s: %w", s.SequenceNumber, caseID, ErrDuplicateSequence)
			}
			if strings.Contains(err.Error(), "verification_code_unique") {
				return fmt.Errorf("error inserting slot %d for case %s: %w", s.SequenceNumber, caseID, ErrDuplicateVerificationCode)
			}
			return fmt.Errorf("error inserting slot %d for case %s: %w", s.SequenceNumber, caseID, err)
		}
	}

	return txn.Commit()
}

// DeletePlan discards all slots of a case and clears the plan_created flag.
func (r *PostgresSlotRepository) DeletePlan(ctx context.Context, caseID uuid.UUID) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for plan deletion: %w", err)
	}
	defer txn.Rollback()

	if _, err := txn.ExecContext(ctx, `DELETE FROM treatment_slots WHERE case_id = $1`, caseID); err != nil {
		return fmt.Errorf("error deleting slots for case %s: %w", caseID, err)
	}
	if _, err := txn.ExecContext(ctx,
		`UPDATE patient_cases SET plan_created = FALSE, updated_at = NOW() WHERE id = $1`, caseID); err != nil {
		return fmt.Errorf("error clearing plan_created flag for case %s: %w", caseID, err)
	}

	return txn.Commit()
}

func (r *PostgresSlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM treatment_slots WHERE id = $1`
	s := slot.Slot{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.CaseID, &s.SequenceNumber, &s.StartAt, &s.EndAt, &s.State,
		&s.VerificationCode, &s.Verified, &s.Finalized, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("error getting slot by ID: %w", err)
	}
	return &s, nil
}

// GetByVerificationCode is an exact-match point lookup; the unique index on
// verification_code guarantees at most one row.
func (r *PostgresSlotRepository) GetByVerificationCode(ctx context.Context, code string) (*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM treatment_slots WHERE verification_code = $1`
	s := slot.Slot{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&s.ID, &s.CaseID, &s.SequenceNumber, &s.StartAt, &s.EndAt, &s.State,
		&s.VerificationCode, &s.Verified, &s.Finalized, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("error getting slot by verification code: %w", err)
	}
	return &s, nil
}

func (r *PostgresSlotRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM treatment_slots WHERE verification_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking verification code existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresSlotRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM treatment_slots WHERE case_id = $1 ORDER BY sequence_number`
	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("error querying slots by case: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

func (r *PostgresSlotRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*slot.Slot, error) {
	if len(ids) == 0 {
		return []*slot.Slot{}, nil
	}
	idsAsStrings := make([]string, len(ids))
	for i, id := range ids {
		idsAsStrings[i] = id.String()
	}
	query := `SELECT ` + slotColumns + ` FROM treatment_slots WHERE id = ANY($1::uuid[]) ORDER BY case_id, sequence_number`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(idsAsStrings))
	if err != nil {
		return nil, fmt.Errorf("error querying slots by ids: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// UpdateWindows persists new date assignments transactionally, matched by
// (case_id, sequence_number). A window matching no row fails the whole update.
func (r *PostgresSlotRepository) UpdateWindows(ctx context.Context, caseID uuid.UUID, windows []slot.Window) error {
	if len(windows) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for window update: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `UPDATE treatment_slots
        SET start_at = $1, end_at = $2, updated_at = NOW()
        WHERE case_id = $3 AND sequence_number = $4`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for window update: %w", err)
	}
	defer stmt.Close()

	for _, w := range windows {
		res, err := stmt.ExecContext(ctx, w.StartAt, w.EndAt, caseID, w.SequenceNumber)
		if err != nil {
			return fmt.Errorf("error updating window for case %s seq %d: %w", caseID, w.SequenceNumber, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading window update result: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("window update for case %s seq %d: %w", caseID, w.SequenceNumber, ErrSlotNotFound)
		}
	}

	return txn.Commit()
}

// MarkInProgress is a conditional bulk update: only rows still PENDING with a
// window containing 'now' at write time are advanced. Returns the updated ids.
func (r *PostgresSlotRepository) MarkInProgress(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `UPDATE treatment_slots
               SET state = $1, updated_at = NOW()
               WHERE state = $2 AND start_at IS NOT NULL AND start_at <= $3 AND end_at >= $3
               RETURNING id`
	rows, err := r.db.QueryContext(ctx, query, slot.StateInProgress, slot.StatePending, now)
	if err != nil {
		return nil, fmt.Errorf("error marking slots in progress: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// MarkOverdue advances PENDING and IN_PROGRESS rows whose window closed before
// 'now'. Including PENDING lets a slot whose whole window elapsed unscanned
// jump straight to OVERDUE. Returns the updated ids.
func (r *PostgresSlotRepository) MarkOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `UPDATE treatment_slots
               SET state = $1, updated_at = NOW()
               WHERE (state = $2 OR state = $3) AND end_at IS NOT NULL AND end_at < $4
               RETURNING id`
	rows, err := r.db.QueryContext(ctx, query, slot.StateOverdue, slot.StatePending, slot.StateInProgress, now)
	if err != nil {
		return nil, fmt.Errorf("error marking slots overdue: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PostgresSlotRepository) ListPendingStartingBetween(ctx context.Context, from, to time.Time) ([]*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM treatment_slots
               WHERE state = $1 AND start_at IS NOT NULL AND start_at >= $2 AND start_at <= $3
               ORDER BY start_at`
	rows, err := r.db.QueryContext(ctx, query, slot.StatePending, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying pending slots by start window: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

func (r *PostgresSlotRepository) ListOverdueUnfinalized(ctx context.Context, endedBefore time.Time) ([]*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM treatment_slots
               WHERE state = $1 AND finalized = FALSE AND end_at < $2
               ORDER BY end_at ASC` // Oldest first
	rows, err := r.db.QueryContext(ctx, query, slot.StateOverdue, endedBefore)
	if err != nil {
		return nil, fmt.Errorf("error querying overdue unfinalized slots: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

func (r *PostgresSlotRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE treatment_slots SET verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error marking slot verified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading verified update result: %w", err)
	}
	if affected == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PostgresSlotRepository) MarkFinalized(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE treatment_slots SET finalized = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error marking slot finalized: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading finalized update result: %w", err)
	}
	if affected == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// Helper to scan multiple rows
func scanSlots(rows *sql.Rows) ([]*slot.Slot, error) {
	slots := make([]*slot.Slot, 0)
	for rows.Next() {
		s := slot.Slot{}
		if err := rows.Scan(
			&s.ID, &s.CaseID, &s.SequenceNumber, &s.StartAt, &s.EndAt, &s.State,
			&s.VerificationCode, &s.Verified, &s.Finalized, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning slot row: %w", err)
		}
		slots = append(slots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot rows: %w", err)
	}
	return slots, nil
}

func scanIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning slot id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot ids: %w", err)
	}
	return ids, nil
}
