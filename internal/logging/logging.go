package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"

	"github.com/menta2k/image-captioner/internal/config"
)

// ParseLevel maps debug/info/warn/error onto slog levels, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the application logger and installs it as the slog default.
// Output goes to stderr so the one-shot CLI keeps stdout for the caption.
func New(cfg config.LogConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// InstallHertz routes hertz's internal logging through slog at the same level
func InstallHertz(cfg config.LogConfig, w io.Writer) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(ParseLevel(cfg.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(w),
		hertzslog.WithLevel(levelVar),
	))
}
