package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName   = "app.log"
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// NewLogger returns a JSON logger writing to stdout and to <logging.dir>/app.log.
// When the directory cannot be created it logs to stderr only.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Logging.Level)}

	w, err := logWriter(cfg.Logging.Dir)
	if err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
		logger.Warn("Log file disabled", slog.String("dir", cfg.Logging.Dir), slog.Any("error", err))
		return logger.With(slog.String("app", cfg.App.Name))
	}

	return slog.New(slog.NewJSONHandler(w, opts)).With(slog.String("app", cfg.App.Name))
}

func logWriter(dir string) (io.Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotating), nil
}

// ParseLevel maps logging.level onto slog. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
