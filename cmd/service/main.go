package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treatment_slot_service/internal/app"
	"treatment_slot_service/internal/domain/notify"
	"treatment_slot_service/internal/infra/config"
	idb "treatment_slot_service/internal/infra/database"
	"treatment_slot_service/internal/infra/httpapi"
	"treatment_slot_service/internal/infra/logger"
	"treatment_slot_service/internal/infra/scheduler"
	"treatment_slot_service/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Treatment slot service starting. Environment: %s, timezone: %s", cfg.Environment, cfg.ScheduleTimezone)

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Database connection established.")

	// Repositories
	slotRepo := idb.NewPostgresSlotRepository(db)
	caseRepo := idb.NewPostgresCaseRepository(db)

	// Push transport
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		// Hard ceiling on every API call so an abandoned send cannot leak
		// its goroutine past the per-delivery deadline.
		Client: &http.Client{Timeout: cfg.SendTimeout},
		OnError: func(err error, c telebot.Context) {
			log.Errorf("telebot: %v", err)
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Fatalf("FATAL: Could not create Telegram bot: %v", err)
	}
	pushClient := telegram.NewTelebotAdapter(bot)

	// Services
	dedupCache := notify.NewDedupCache(cfg.DedupTTL)
	planService := app.NewPlanService(slotRepo, caseRepo, log, cfg.ScheduleTimezone)
	lifecycleService := app.NewLifecycleService(slotRepo, log)
	dispatchService := app.NewDispatchService(slotRepo, caseRepo, lifecycleService, pushClient, dedupCache, log, app.DispatchConfig{
		BatchSize:       cfg.DispatchBatchSize,
		SendTimeout:     cfg.SendTimeout,
		DefaultSenderID: cfg.DefaultSenderID,
		GracePatient:    cfg.OverdueGracePatient,
		GraceClinician:  cfg.OverdueGraceClinician,
		Location:        cfg.ScheduleTimezone,
	})
	verificationService := app.NewVerificationService(slotRepo, log)

	// Periodic runner
	slotScheduler := scheduler.NewSlotScheduler(dispatchService, dedupCache, log, cfg)
	if err := slotScheduler.Start(); err != nil {
		log.Fatalf("FATAL: Could not start slot scheduler: %v", err)
	}

	// Admin HTTP surface
	handler := httpapi.NewHandler(planService, verificationService, dispatchService, log)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(handler),
	}
	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server failed: %v", err)
		}
	}()

	log.Info("Application setup complete.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	slotScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown: %v", err)
	}
	log.Info("Application shut down gracefully.")
}
