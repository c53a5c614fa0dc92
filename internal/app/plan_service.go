// internal/app/plan_service.go
package app

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"treatment_slot_service/internal/domain/patientcase"
	"treatment_slot_service/internal/domain/slot"
	idb "treatment_slot_service/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Custom application-level errors for plan management
var ErrInvalidSlotCount = fmt.Errorf("slot count must be positive")
var ErrPlanAlreadyExists = fmt.Errorf("a treatment plan already exists for this case")
var ErrCodeSpaceExhausted = fmt.Errorf("could not generate a unique verification code")

const (
	verificationCodeLength = 10
	codeGenerationRetries  = 5
)

// PlanService creates, reschedules and discards treatment plans.
type PlanService struct {
	slotRepo slot.Repository
	caseRepo patientcase.Repository
	logger   *logrus.Logger
	location *time.Location
}

func NewPlanService(sr slot.Repository, cr patientcase.Repository, logger *logrus.Logger, loc *time.Location) *PlanService {
	return &PlanService{
		slotRepo: sr,
		caseRepo: cr,
		logger:   logger,
		location: loc,
	}
}

// CreatePlan generates an ordered sequence of 'count' slots for a case. Plan
// creation is a one-time operation per case: the existence check here and the
// conditional flag update in the repository both reject a second plan. Slots
// are created PENDING and without dates; Reschedule assigns the windows.
func (s *PlanService) CreatePlan(ctx context.Context, caseID uuid.UUID, count int) ([]*slot.Slot, error) {
	if count <= 0 {
		return nil, ErrInvalidSlotCount
	}

	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	if c.PlanCreated {
		return nil, ErrPlanAlreadyExists
	}

	slots := make([]*slot.Slot, 0, count)
	claimed := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		code, err := s.newVerificationCode(ctx, claimed)
		if err != nil {
			return nil, err
		}
		claimed[code] = struct{}{}
		slots = append(slots, &slot.Slot{
			ID:               uuid.New(),
			CaseID:           caseID,
			SequenceNumber:   i + 1,
			State:            slot.StatePending,
			VerificationCode: code,
		})
	}

	if err := s.slotRepo.CreatePlan(ctx, caseID, slots); err != nil {
		if err == idb.ErrPlanAlreadyExists {
			return nil, ErrPlanAlreadyExists
		}
		return nil, fmt.Errorf("failed to create plan for case %s: %w", caseID, err)
	}

	s.logger.Infof("Created treatment plan for case %s with %d slots", caseID, count)
	return slots, nil
}

// Reschedule recomputes and persists the date windows of an existing plan.
func (s *PlanService) Reschedule(ctx context.Context, caseID uuid.UUID, frequencyDays int, anchor time.Time) ([]slot.Window, error) {
	slots, err := s.slotRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots for case %s: %w", caseID, err)
	}

	windows, err := slot.AssignWindows(slots, frequencyDays, anchor, s.location)
	if err != nil {
		return nil, err
	}

	if err := s.slotRepo.UpdateWindows(ctx, caseID, windows); err != nil {
		return nil, fmt.Errorf("failed to persist windows for case %s: %w", caseID, err)
	}

	s.logger.Infof("Rescheduled case %s: %d slots, every %d days from %s",
		caseID, len(windows), frequencyDays, windows[0].StartAt.Format("2006-01-02"))
	return windows, nil
}

// DeletePlan discards the whole plan of a case, resetting the plan-created flag.
func (s *PlanService) DeletePlan(ctx context.Context, caseID uuid.UUID) error {
	if err := s.slotRepo.DeletePlan(ctx, caseID); err != nil {
		return fmt.Errorf("failed to delete plan for case %s: %w", caseID, err)
	}
	s.logger.Infof("Deleted treatment plan for case %s", caseID)
	return nil
}

// newVerificationCode draws a random code and checks it against every code
// ever issued. Collisions are statistically negligible at this length, but
// checked rather than assumed; 'claimed' covers codes drawn for the current
// batch that are not persisted yet.
func (s *PlanService) newVerificationCode(ctx context.Context, claimed map[string]struct{}) (string, error) {
	for attempt := 0; attempt < codeGenerationRetries; attempt++ {
		code, err := randomCode(verificationCodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate verification code: %w", err)
		}
		if _, dup := claimed[code]; dup {
			continue
		}
		exists, err := s.slotRepo.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check verification code uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}
		s.logger.Warnf("Verification code collision on attempt %d, regenerating", attempt+1)
	}
	return "", ErrCodeSpaceExhausted
}

// randomCode returns an unpadded base32 string of n characters, the charset
// that survives QR printing and manual entry.
func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.EncodeToString(buf)[:n], nil
}
