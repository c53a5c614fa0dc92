package scheduler

import (
	"context"
	"time"

	"treatment_slot_service/internal/app"
	"treatment_slot_service/internal/domain/notify"
	"treatment_slot_service/internal/infra/config"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SlotScheduler fires the lifecycle and notification passes on independent
// wall-clock triggers. Every trigger kind is its own cron entry with its own
// context, so a slow run of one kind never delays another; a tick that fires
// while cron is busy elsewhere is simply skipped, not queued. Overlapping
// runs of the same kind are not prevented here (single-writer assumption).
type SlotScheduler struct {
	cronEngine *cron.Cron
	dispatch   *app.DispatchService
	dedup      *notify.DedupCache
	logger     *logrus.Logger
	cfg        *config.AppConfig
}

func NewSlotScheduler(
	dispatch *app.DispatchService,
	dedup *notify.DedupCache,
	logger *logrus.Logger,
	cfg *config.AppConfig,
) *SlotScheduler {
	return &SlotScheduler{
		cronEngine: cron.New(cron.WithLocation(cfg.ScheduleTimezone)),
		dispatch:   dispatch,
		dedup:      dedup,
		logger:     logger,
		cfg:        cfg,
	}
}

func (s *SlotScheduler) Start() error {
	s.logger.Info("Starting slot scheduler...")

	// Two lifecycle sweeps a day: the in-progress sweep just after windows
	// open at midnight, the overdue sweep shortly after. Both run the same
	// scan; the scan is idempotent and each sweep dispatches whatever it
	// actually changed.
	if err := s.addJob("in-progress sweep", s.cfg.CronSpecInProgressSweep, 5*time.Minute, s.runLifecycleScan); err != nil {
		return err
	}
	if err := s.addJob("overdue sweep", s.cfg.CronSpecOverdueSweep, 5*time.Minute, s.runLifecycleScan); err != nil {
		return err
	}

	if err := s.addJob("starts-tomorrow reminder", s.cfg.CronSpecStartsTomorrow, 5*time.Minute,
		s.notificationPass(notify.ReasonStartsTomorrow)); err != nil {
		return err
	}
	if err := s.addJob("starts-today reminder", s.cfg.CronSpecStartsToday, 5*time.Minute,
		s.notificationPass(notify.ReasonStartsToday)); err != nil {
		return err
	}
	// Escalating followups for overdue, unfinalized slots on two fixed weekdays.
	if err := s.addJob("overdue followup", s.cfg.CronSpecOverdueFollowup, 10*time.Minute,
		s.notificationPass(notify.ReasonOverdueFollowup)); err != nil {
		return err
	}

	// Wholesale dedup clear. Entries marked just before a clear are
	// forgotten early; suppression is best-effort.
	if err := s.addJob("dedup clear", s.cfg.CronSpecDedupClear, time.Minute, func(ctx context.Context) error {
		n := s.dedup.Count()
		s.dedup.Clear()
		s.logger.Debugf("Dedup cache cleared, dropped %d entries", n)
		return nil
	}); err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.Info("Slot scheduler started with jobs.")
	return nil
}

func (s *SlotScheduler) addJob(name, spec string, timeout time.Duration, run func(context.Context) error) error {
	_, err := s.cronEngine.AddFunc(spec, func() {
		s.logger.Infof("Cron job triggered: %s", name)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := run(ctx); err != nil {
			s.logger.Errorf("Error during %s: %v", name, err)
		}
	})
	if err != nil {
		s.logger.Errorf("Could not add %s cron job: %v", name, err)
		return err
	}
	return nil
}

func (s *SlotScheduler) runLifecycleScan(ctx context.Context) error {
	// One time snapshot per scan; never re-read mid-scan.
	return s.dispatch.RunLifecycleScan(ctx, time.Now())
}

func (s *SlotScheduler) notificationPass(reason notify.Reason) func(context.Context) error {
	return func(ctx context.Context) error {
		delivered, err := s.dispatch.RunNotificationPass(ctx, reason, time.Now())
		if err != nil {
			return err
		}
		s.logger.Infof("Notification pass %s delivered %d messages", reason, delivered)
		return nil
	}
}

func (s *SlotScheduler) Stop() {
	s.logger.Info("Stopping slot scheduler...")
	ctx := s.cronEngine.Stop() // Stops scheduling new runs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Slot scheduler gracefully stopped.")
}
