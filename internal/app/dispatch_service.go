// internal/app/dispatch_service.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"treatment_slot_service/internal/domain/notify"
	"treatment_slot_service/internal/domain/patientcase"
	"treatment_slot_service/internal/domain/push"
	"treatment_slot_service/internal/domain/slot"

	"github.com/sirupsen/logrus"
)

var ErrUnknownReason = fmt.Errorf("unknown notification reason")

// DispatchConfig carries the tunables of the notification dispatcher.
type DispatchConfig struct {
	BatchSize       int
	SendTimeout     time.Duration
	DefaultSenderID string
	GracePatient    time.Duration
	GraceClinician  time.Duration
	Location        *time.Location
}

// DispatchService composes and delivers slot notifications. Delivery is
// at-least-once with local dedup: the cache suppresses repeats within its TTL
// window, and failed sends are logged and dropped, to be retried naturally on
// the next trigger while the underlying condition persists.
type DispatchService struct {
	slotRepo  slot.Repository
	caseRepo  patientcase.Repository
	lifecycle *LifecycleService
	client    push.Client
	dedup     *notify.DedupCache
	logger    *logrus.Logger
	cfg       DispatchConfig
}

func NewDispatchService(
	sr slot.Repository,
	cr patientcase.Repository,
	ls *LifecycleService,
	client push.Client,
	dedup *notify.DedupCache,
	logger *logrus.Logger,
	cfg DispatchConfig,
) *DispatchService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &DispatchService{
		slotRepo:  sr,
		caseRepo:  cr,
		lifecycle: ls,
		client:    client,
		dedup:     dedup,
		logger:    logger,
		cfg:       cfg,
	}
}

// RunLifecycleScan advances slot states and dispatches notifications for the
// slots the scan changed. Exposed for the periodic runner and for manual
// triggering.
func (s *DispatchService) RunLifecycleScan(ctx context.Context, now time.Time) error {
	result, err := s.lifecycle.Scan(ctx, now)
	if err != nil {
		return err
	}
	if result.Empty() {
		return nil
	}

	started := s.Dispatch(ctx, result.ToInProgress, notify.ReasonSlotStarted, now)
	overdue := s.Dispatch(ctx, result.ToOverdue, notify.ReasonSlotOverdue, now)
	s.logger.Infof("Lifecycle dispatch: %d started deliveries, %d overdue deliveries", started, overdue)
	return nil
}

// RunNotificationPass executes one reminder pass for the given reason.
func (s *DispatchService) RunNotificationPass(ctx context.Context, reason notify.Reason, now time.Time) (int, error) {
	local := now.In(s.cfg.Location)

	var slots []*slot.Slot
	var err error
	switch reason {
	case notify.ReasonStartsTomorrow:
		from := startOfDay(local.AddDate(0, 0, 1))
		slots, err = s.slotRepo.ListPendingStartingBetween(ctx, from, from.AddDate(0, 0, 1).Add(-time.Nanosecond))
	case notify.ReasonStartsToday:
		from := startOfDay(local)
		slots, err = s.slotRepo.ListPendingStartingBetween(ctx, from, from.AddDate(0, 0, 1).Add(-time.Nanosecond))
	case notify.ReasonOverdueFollowup:
		// Query with the shorter grace; the longer one is applied per
		// recipient during composition.
		grace := s.cfg.GracePatient
		if s.cfg.GraceClinician < grace {
			grace = s.cfg.GraceClinician
		}
		slots, err = s.slotRepo.ListOverdueUnfinalized(ctx, now.Add(-grace))
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownReason, reason)
	}
	if err != nil {
		return 0, fmt.Errorf("notification pass %s: %w", reason, err)
	}
	return s.Dispatch(ctx, slots, reason, now), nil
}

// Dispatch processes slots in fixed-size chunks sequentially; within a chunk,
// composition and delivery run concurrently, bounded by the chunk size. A
// failure on one slot or message never aborts the batch and is not an error
// of the pass either: failures are logged per message, and the return value
// is the number of deliveries that actually succeeded.
func (s *DispatchService) Dispatch(ctx context.Context, slots []*slot.Slot, reason notify.Reason, now time.Time) int {
	var delivered atomic.Int64

	for start := 0; start < len(slots); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(slots) {
			end = len(slots)
		}
		chunk := slots[start:end]

		var wg sync.WaitGroup
		for _, sl := range chunk {
			wg.Add(1)
			go func(sl *slot.Slot) {
				defer wg.Done()
				delivered.Add(int64(s.dispatchSlot(ctx, sl, reason, now)))
			}(sl)
		}
		wg.Wait()
	}

	return int(delivered.Load())
}

// dispatchSlot composes and sends the messages for one slot. The dedup check
// happens before composition: a hit skips the slot for this reason in this
// run. Check and record are a single atomic step on the cache.
func (s *DispatchService) dispatchSlot(ctx context.Context, sl *slot.Slot, reason notify.Reason, now time.Time) int {
	key := notify.Key(reason, sl.ID, s.discriminator(sl, reason, now))
	if !s.dedup.MarkIfNew(key, now) {
		s.logger.Debugf("Dedup hit for %s, skipping slot %s", key, sl.ID)
		return 0
	}

	c, err := s.caseRepo.GetByID(ctx, sl.CaseID)
	if err != nil {
		s.logger.Errorf("Failed to load case %s for slot %s: %v", sl.CaseID, sl.ID, err)
		return 0
	}

	delivered := 0
	for _, intent := range s.composeIntents(sl, c, reason, now) {
		if err := s.send(ctx, intent); err != nil {
			s.logger.Errorf("Delivery failed for slot %s (%s to %s): %v", sl.ID, reason, intent.Role, err)
			continue
		}
		delivered++
	}
	return delivered
}

// send delivers one intent with an individual time bound. A timed-out
// delivery counts as a delivery failure and does not block the batch.
func (s *DispatchService) send(ctx context.Context, intent notify.Intent) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	return s.client.Send(sendCtx, push.Message{
		ChatID: intent.ChatID,
		Title:  intent.Title,
		Body:   intent.Body,
		Metadata: map[string]string{
			"slotId":   intent.SlotID.String(),
			"reason":   string(intent.Reason),
			"severity": string(intent.Severity),
			"sender":   intent.Sender,
		},
	})
}

// discriminator widens the dedup key where one (reason, slot) pair must
// legitimately notify more than once: date reminders re-fire on a new day,
// overdue followups re-fire when the urgency tier changes.
func (s *DispatchService) discriminator(sl *slot.Slot, reason notify.Reason, now time.Time) string {
	switch reason {
	case notify.ReasonStartsTomorrow, notify.ReasonStartsToday:
		return now.In(s.cfg.Location).Format("2006-01-02")
	case notify.ReasonOverdueFollowup:
		return string(notify.TierFor(sl.EndAt.Time, now))
	default:
		return ""
	}
}

// composeIntents builds up to two messages for a slot: one for the patient,
// one for the assigned clinician. The clinician message is omitted when the
// case has no clinician; followups additionally honor the per-recipient
// grace period.
func (s *DispatchService) composeIntents(sl *slot.Slot, c *patientcase.Case, reason notify.Reason, now time.Time) []notify.Intent {
	intents := make([]notify.Intent, 0, 2)

	// Patient messages come "from" the assigned clinician; the default
	// system sender substitutes when the case has none.
	patientSender := s.cfg.DefaultSenderID
	if c.ClinicianChatID.Valid {
		patientSender = strconv.FormatInt(c.ClinicianChatID.Int64, 10)
	}

	if s.wantsFollowup(sl, reason, now, s.cfg.GracePatient) {
		title, body, severity := patientMessage(sl, reason, now, s.cfg.Location)
		intents = append(intents, notify.Intent{
			SlotID:   sl.ID,
			Role:     notify.RolePatient,
			ChatID:   c.PatientChatID,
			Sender:   patientSender,
			Title:    title,
			Body:     body,
			Severity: severity,
			Reason:   reason,
		})
	}

	if c.ClinicianChatID.Valid && s.wantsFollowup(sl, reason, now, s.cfg.GraceClinician) {
		title, body, severity := clinicianMessage(sl, c, reason, now, s.cfg.Location)
		intents = append(intents, notify.Intent{
			SlotID:   sl.ID,
			Role:     notify.RoleClinician,
			ChatID:   c.ClinicianChatID.Int64,
			Sender:   s.cfg.DefaultSenderID,
			Title:    title,
			Body:     body,
			Severity: severity,
			Reason:   reason,
		})
	}

	return intents
}

func (s *DispatchService) wantsFollowup(sl *slot.Slot, reason notify.Reason, now time.Time, grace time.Duration) bool {
	if reason != notify.ReasonOverdueFollowup {
		return true
	}
	return sl.EndAt.Valid && now.Sub(sl.EndAt.Time) >= grace
}

func patientMessage(sl *slot.Slot, reason notify.Reason, now time.Time, loc *time.Location) (string, string, notify.Severity) {
	switch reason {
	case notify.ReasonSlotStarted:
		return "Treatment session open",
			fmt.Sprintf("Session %d of your treatment plan is now open. Please complete it by %s.",
				sl.SequenceNumber, formatDay(sl.EndAt, loc)),
			notify.SeverityInfo
	case notify.ReasonSlotOverdue:
		return "Treatment session missed",
			fmt.Sprintf("Session %d of your treatment plan closed on %s without being completed. Please contact your clinic.",
				sl.SequenceNumber, formatDay(sl.EndAt, loc)),
			notify.SeverityWarning
	case notify.ReasonStartsTomorrow:
		return "Treatment session tomorrow",
			fmt.Sprintf("Session %d of your treatment plan starts tomorrow, %s.",
				sl.SequenceNumber, formatDay(sl.StartAt, loc)),
			notify.SeverityInfo
	case notify.ReasonStartsToday:
		return "Treatment session today",
			fmt.Sprintf("Session %d of your treatment plan starts today and is open until %s.",
				sl.SequenceNumber, formatDay(sl.EndAt, loc)),
			notify.SeverityInfo
	case notify.ReasonOverdueFollowup:
		days := overdueDays(sl, now)
		switch notify.TierFor(sl.EndAt.Time, now) {
		case notify.TierCritical:
			return "Urgent: treatment plan stalled",
				fmt.Sprintf("Session %d has been overdue for %d days. Immediate attention is required.", sl.SequenceNumber, days),
				notify.SeverityCritical
		case notify.TierHigh:
			return "Treatment session needs attention",
				fmt.Sprintf("Session %d is %d days overdue. Please contact your clinic as soon as possible.", sl.SequenceNumber, days),
				notify.SeverityWarning
		default:
			return "Overdue treatment session",
				fmt.Sprintf("Session %d is %d days overdue. Please schedule a visit.", sl.SequenceNumber, days),
				notify.SeverityWarning
		}
	}
	return "Treatment plan update", fmt.Sprintf("Update for session %d of your treatment plan.", sl.SequenceNumber), notify.SeverityInfo
}

func clinicianMessage(sl *slot.Slot, c *patientcase.Case, reason notify.Reason, now time.Time, loc *time.Location) (string, string, notify.Severity) {
	switch reason {
	case notify.ReasonSlotStarted:
		return "Patient session in progress",
			fmt.Sprintf("Session %d for case %s is now in progress (until %s).",
				sl.SequenceNumber, c.ID, formatDay(sl.EndAt, loc)),
			notify.SeverityInfo
	case notify.ReasonSlotOverdue:
		return "Patient session overdue",
			fmt.Sprintf("Session %d for case %s closed on %s without completion.",
				sl.SequenceNumber, c.ID, formatDay(sl.EndAt, loc)),
			notify.SeverityWarning
	case notify.ReasonStartsTomorrow:
		return "Patient session tomorrow",
			fmt.Sprintf("Session %d for case %s starts tomorrow, %s.",
				sl.SequenceNumber, c.ID, formatDay(sl.StartAt, loc)),
			notify.SeverityInfo
	case notify.ReasonStartsToday:
		return "Patient session today",
			fmt.Sprintf("Session %d for case %s starts today.", sl.SequenceNumber, c.ID),
			notify.SeverityInfo
	case notify.ReasonOverdueFollowup:
		days := overdueDays(sl, now)
		switch notify.TierFor(sl.EndAt.Time, now) {
		case notify.TierCritical:
			return "Urgent: patient plan stalled",
				fmt.Sprintf("Session %d for case %s has been overdue for %d days.", sl.SequenceNumber, c.ID, days),
				notify.SeverityCritical
		case notify.TierHigh:
			return "Patient session needs attention",
				fmt.Sprintf("Session %d for case %s is %d days overdue.", sl.SequenceNumber, c.ID, days),
				notify.SeverityWarning
		default:
			return "Patient session overdue",
				fmt.Sprintf("Session %d for case %s is %d days overdue.", sl.SequenceNumber, c.ID, days),
				notify.SeverityWarning
		}
	}
	return "Treatment plan update", fmt.Sprintf("Update for session %d of case %s.", sl.SequenceNumber, c.ID), notify.SeverityInfo
}

func overdueDays(sl *slot.Slot, now time.Time) int {
	if !sl.EndAt.Valid {
		return 0
	}
	return int(now.Sub(sl.EndAt.Time).Hours() / 24)
}

func formatDay(t sql.NullTime, loc *time.Location) string {
	if !t.Valid {
		return "the scheduled date"
	}
	return t.Time.In(loc).Format("January 2")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
