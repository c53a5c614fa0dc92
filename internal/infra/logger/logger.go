package logger

import (
	"os"
	"strings"

	"treatment_slot_service/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before Init with logrus
// defaults, so configuration failures can be reported through it too.
var Log = logrus.New()

// Init applies the configured level and picks an output format: structured
// JSON for log aggregation in production and staging, colored text everywhere
// else. An unparseable level falls back to info rather than failing startup.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)

	if level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		Log.Warnf("Unknown log level %q, using info: %v", cfg.LogLevel, err)
		Log.SetLevel(logrus.InfoLevel)
	} else {
		Log.SetLevel(level)
	}

	Log.SetFormatter(formatterFor(cfg.Environment))
	Log.Debugf("Logger ready: level=%s environment=%s", Log.GetLevel(), cfg.Environment)
}

func formatterFor(environment string) logrus.Formatter {
	switch environment {
	case "production", "staging":
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		}
	default:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		}
	}
}

// Get returns the configured process-wide logger for injection into services.
func Get() *logrus.Logger {
	return Log
}
