package patientcase

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines read access to the case aggregate.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
}
