// internal/domain/slot/schedule.go
package slot

import (
	"fmt"
	"time"
)

// Bounds for the treatment frequency, in days between slot starts.
const (
	MinFrequencyDays = 7
	MaxFrequencyDays = 20
)

var ErrInvalidFrequency = fmt.Errorf("frequency must be between %d and %d days", MinFrequencyDays, MaxFrequencyDays)
var ErrEmptySlotList = fmt.Errorf("no slots to schedule")
var ErrSequenceConflict = fmt.Errorf("slot sequence numbers are duplicated or out of order")

// Window is a computed date assignment for one slot position.
type Window struct {
	SequenceNumber int
	StartAt        time.Time
	EndAt          time.Time
}

// PlanWindows computes the date windows for a plan of 'count' slots.
//
// The anchor is normalized to the start of its calendar day in loc before any
// arithmetic, so a caller-supplied time of day never shifts window boundaries.
// Each window spans frequencyDays calendar days: it opens at the start of its
// first day and closes at the last instant (23:59:59.999) of its last day.
// The next window starts one minute after the previous one closed, normalized
// back to its day start, which keeps windows strictly ordered and
// non-overlapping.
func PlanWindows(count, frequencyDays int, anchor time.Time, loc *time.Location) ([]Window, error) {
	if frequencyDays < MinFrequencyDays || frequencyDays > MaxFrequencyDays {
		return nil, ErrInvalidFrequency
	}
	if count <= 0 {
		return nil, ErrEmptySlotList
	}

	windows := make([]Window, 0, count)
	start := startOfDay(anchor.In(loc))
	for i := 0; i < count; i++ {
		end := endOfDay(start.AddDate(0, 0, frequencyDays-1))
		windows = append(windows, Window{
			SequenceNumber: i + 1,
			StartAt:        start,
			EndAt:          end,
		})
		start = startOfDay(end.Add(time.Minute))
	}
	return windows, nil
}

// AssignWindows computes new windows for an existing, sequence-ordered plan.
// The returned assignments carry the slots' sequence numbers so the caller can
// persist them transactionally.
func AssignWindows(slots []*Slot, frequencyDays int, anchor time.Time, loc *time.Location) ([]Window, error) {
	if len(slots) == 0 {
		return nil, ErrEmptySlotList
	}
	windows, err := PlanWindows(len(slots), frequencyDays, anchor, loc)
	if err != nil {
		return nil, err
	}
	for i, s := range slots {
		if i > 0 && s.SequenceNumber <= slots[i-1].SequenceNumber {
			return nil, ErrSequenceConflict
		}
		windows[i].SequenceNumber = s.SequenceNumber
	}
	return windows, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}
