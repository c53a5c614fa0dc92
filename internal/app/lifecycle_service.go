// internal/app/lifecycle_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"treatment_slot_service/internal/domain/slot"

	"github.com/sirupsen/logrus"
)

// ScanResult holds the slots changed by one lifecycle scan.
type ScanResult struct {
	ToInProgress []*slot.Slot
	ToOverdue    []*slot.Slot
}

// Empty reports whether the scan changed nothing.
func (r *ScanResult) Empty() bool {
	return len(r.ToInProgress) == 0 && len(r.ToOverdue) == 0
}

// LifecycleService advances slot states based on wall-clock time.
type LifecycleService struct {
	slotRepo slot.Repository
	logger   *logrus.Logger
}

func NewLifecycleService(sr slot.Repository, logger *logrus.Logger) *LifecycleService {
	return &LifecycleService{slotRepo: sr, logger: logger}
}

// Scan performs one lifecycle pass against a single time snapshot: 'now' is
// captured once by the caller and never re-read, so every slot is evaluated
// against the same instant. The in-progress transition is applied before the
// overdue transition; both are conditional bulk updates, so running Scan
// twice with the same 'now' yields an empty result the second time.
//
// Any error aborts the current scan only; untouched slots stay in their
// last-known-good state for the next pass.
func (s *LifecycleService) Scan(ctx context.Context, now time.Time) (*ScanResult, error) {
	startedIDs, err := s.slotRepo.MarkInProgress(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("lifecycle scan: in-progress transition failed: %w", err)
	}

	overdueIDs, err := s.slotRepo.MarkOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("lifecycle scan: overdue transition failed: %w", err)
	}

	result := &ScanResult{ToInProgress: []*slot.Slot{}, ToOverdue: []*slot.Slot{}}

	// Re-read only the just-changed rows so notification composition never
	// walks the whole table.
	if len(startedIDs) > 0 {
		result.ToInProgress, err = s.slotRepo.ListByIDs(ctx, startedIDs)
		if err != nil {
			return nil, fmt.Errorf("lifecycle scan: failed to re-read started slots: %w", err)
		}
	}
	if len(overdueIDs) > 0 {
		result.ToOverdue, err = s.slotRepo.ListByIDs(ctx, overdueIDs)
		if err != nil {
			return nil, fmt.Errorf("lifecycle scan: failed to re-read overdue slots: %w", err)
		}
	}

	if !result.Empty() {
		s.logger.Infof("Lifecycle scan at %s: %d slots in progress, %d overdue",
			now.Format(time.RFC3339), len(result.ToInProgress), len(result.ToOverdue))
	}
	return result, nil
}
