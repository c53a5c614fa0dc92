// internal/infra/database/postgres_case_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"treatment_slot_service/internal/domain/patientcase"

	"github.com/google/uuid"
)

var ErrCaseNotFound = fmt.Errorf("patient case not found")

type PostgresCaseRepository struct {
	db *sql.DB
}

func NewPostgresCaseRepository(db *sql.DB) *PostgresCaseRepository {
	return &PostgresCaseRepository{db: db}
}

func (r *PostgresCaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*patientcase.Case, error) {
	query := `SELECT id, patient_chat_id, clinician_chat_id, plan_created, created_at, updated_at
               FROM patient_cases WHERE id = $1`
	c := patientcase.Case{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.PatientChatID, &c.ClinicianChatID, &c.PlanCreated, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("error getting patient case by ID: %w", err)
	}
	return &c, nil
}
