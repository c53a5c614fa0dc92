package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken string
	DatabaseURL   string
	HTTPAddr      string
	LogLevel      string
	Environment   string

	// DefaultSenderID substitutes for the "from" field on messages composed
	// for cases without an assigned clinician.
	DefaultSenderID  string
	ScheduleTimezone *time.Location

	DispatchBatchSize int
	SendTimeout       time.Duration
	DedupTTL          time.Duration

	// Overdue grace periods before followups fire, per recipient class. The
	// upstream behavior had an undocumented 48h/24h asymmetry between caller
	// roles; both knobs default to 24h so the asymmetry is opt-in.
	OverdueGracePatient   time.Duration
	OverdueGraceClinician time.Duration

	CronSpecInProgressSweep string
	CronSpecOverdueSweep    string
	CronSpecStartsTomorrow  string
	CronSpecStartsToday     string
	CronSpecOverdueFollowup string
	CronSpecDedupClear      string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.DefaultSenderID = getEnv("DEFAULT_SENDER_ID", "system")

	tzName := getEnv("SCHEDULE_TIMEZONE", "UTC")
	cfg.ScheduleTimezone, err = time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", tzName, err)
	}

	cfg.DispatchBatchSize, err = getEnvInt("DISPATCH_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	if cfg.DispatchBatchSize <= 0 {
		return nil, fmt.Errorf("DISPATCH_BATCH_SIZE must be positive")
	}

	cfg.SendTimeout, err = getEnvDuration("SEND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.DedupTTL, err = getEnvDuration("DEDUP_TTL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.OverdueGracePatient, err = getEnvDuration("OVERDUE_GRACE_PATIENT", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.OverdueGraceClinician, err = getEnvDuration("OVERDUE_GRACE_CLINICIAN", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg.CronSpecInProgressSweep = getEnv("CRON_SPEC_IN_PROGRESS_SWEEP", "5 0 * * *")   // 00:05 daily, windows open at midnight
	cfg.CronSpecOverdueSweep = getEnv("CRON_SPEC_OVERDUE_SWEEP", "15 0 * * *")         // 00:15 daily
	cfg.CronSpecStartsTomorrow = getEnv("CRON_SPEC_STARTS_TOMORROW", "0 18 * * *")     // 18:00 daily
	cfg.CronSpecStartsToday = getEnv("CRON_SPEC_STARTS_TODAY", "0 8 * * *")            // 08:00 daily
	cfg.CronSpecOverdueFollowup = getEnv("CRON_SPEC_OVERDUE_FOLLOWUP", "0 10 * * 1,4") // 10:00 Mondays and Thursdays
	cfg.CronSpecDedupClear = getEnv("CRON_SPEC_DEDUP_CLEAR", "0 * * * *")              // hourly

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
