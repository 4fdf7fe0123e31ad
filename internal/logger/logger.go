package logger

import (
	"io"
	"os"
	"strings"

	"github.com/LeventeLantos/kiosk-messaging/internal/config"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Packages log through it with structured fields.
var Log = logrus.New()

// Init sets the level and formatter from cfg. Production and staging get JSON.
func Init(cfg config.LogConfig) {
	InitWithOutput(cfg, os.Stdout)
}

func InitWithOutput(cfg config.LogConfig, out io.Writer) {
	Log.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		Log.Warnf("invalid log level %q, defaulting to info: %v", cfg.Level, err)
		Log.SetLevel(logrus.InfoLevel)
	} else {
		Log.SetLevel(level)
	}

	switch strings.ToLower(cfg.Environment) {
	case "production", "staging":
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	Log.Debugf("log level %s, environment %s", Log.GetLevel(), cfg.Environment)
}

// Component returns an entry tagged with the emitting component.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
