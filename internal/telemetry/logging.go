package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

var levels = map[string]slog.Level{
	"DEBUG":   slog.LevelDebug,
	"INFO":    slog.LevelInfo,
	"WARN":    slog.LevelWarn,
	"WARNING": slog.LevelWarn,
	"ERROR":   slog.LevelError,
}

// ParseLevel переводит LOG_LEVEL в slog.Level без учёта регистра.
// Неизвестное значение даёт INFO.
func ParseLevel(level string) slog.Level {
	if lvl, ok := levels[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// NewLogger создаёт логгер в w. format "text" включает
// человекочитаемый вывод, любое другое значение даёт JSON.
// На уровне DEBUG в записи добавляется источник.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupLogger создаёт логгер в stdout и делает его slog.Default.
func SetupLogger(level, format string) *slog.Logger {
	logger := NewLogger(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер запроса в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста или возвращает slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func WithWorkflowID(logger *slog.Logger, id uuid.UUID) *slog.Logger {
	return logger.With("workflow_id", id.String())
}

func WithJob(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("job", name)
}
