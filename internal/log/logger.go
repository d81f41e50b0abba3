package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global logger. Only the first call takes effect.
// Unknown levels fall back to INFO; format "text" selects the text handler,
// anything else JSON.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination, for processes that own
// the terminal (the TUI) and must keep logs off stdout.
func SetupWriter(w io.Writer, level, format string) {
	once.Do(func() {
		logger = newLogger(w, level, format)
		slog.SetDefault(logger)
	})
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	Setup("INFO", "json")
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithLoop returns a logger with the loop field set.
func WithLoop(name string) *slog.Logger {
	return Get().With(slog.String("loop", name))
}

// WithTicket returns a logger with the ticket_id field set.
func WithTicket(id string) *slog.Logger {
	return Get().With(slog.String("ticket_id", id))
}
