// internal/app/verification_service.go
package app

import (
	"context"
	"fmt"

	"treatment_slot_service/internal/domain/slot"
	idb "treatment_slot_service/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Custom application-level errors for slot verification
var ErrCodeNotFound = fmt.Errorf("verification code not found")
var ErrCodeMismatch = fmt.Errorf("verification code belongs to a different slot")

// VerificationService binds a presented single-use code to exactly one slot.
// This is the only point where an externally supplied token is trusted, so
// the lookup is exact-match only.
type VerificationService struct {
	slotRepo slot.Repository
	logger   *logrus.Logger
}

func NewVerificationService(sr slot.Repository, logger *logrus.Logger) *VerificationService {
	return &VerificationService{slotRepo: sr, logger: logger}
}

// Verify marks the slot verified when the presented code belongs to it.
// Re-verifying an already-verified slot with the correct code succeeds as a
// no-op; a slot is never unverified.
func (s *VerificationService) Verify(ctx context.Context, slotID uuid.UUID, code string) error {
	found, err := s.slotRepo.GetByVerificationCode(ctx, code)
	if err != nil {
		if err == idb.ErrSlotNotFound {
			return ErrCodeNotFound
		}
		return fmt.Errorf("failed to look up verification code: %w", err)
	}

	if found.ID != slotID {
		s.logger.Warnf("Verification code mismatch: code belongs to slot %s, presented for slot %s", found.ID, slotID)
		return ErrCodeMismatch
	}

	if found.Verified {
		s.logger.Debugf("Slot %s already verified, no-op", slotID)
		return nil
	}

	if err := s.slotRepo.MarkVerified(ctx, slotID); err != nil {
		return fmt.Errorf("failed to mark slot %s verified: %w", slotID, err)
	}
	s.logger.Infof("Slot %s verified", slotID)
	return nil
}

// MarkFinalized records that all required artifacts for a slot exist. The
// artifact check itself lives in an external collaborator; this service only
// stores the flag.
func (s *VerificationService) MarkFinalized(ctx context.Context, slotID uuid.UUID) error {
	if err := s.slotRepo.MarkFinalized(ctx, slotID); err != nil {
		return fmt.Errorf("failed to mark slot %s finalized: %w", slotID, err)
	}
	return nil
}
