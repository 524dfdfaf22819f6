package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/tabletalk/tabletalk/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// NewLogger builds the process logger. Every record carries the service,
// profile, store backend and language model provider.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	provider := cfg.AI.Provider
	if cfg.AI.APIKey == "" {
		provider = "none"
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("store_backend", string(cfg.Store.Backend)),
		slog.String("ai_provider", provider),
	)
}

// SessionLogger scopes logger to one session request.
func SessionLogger(ctx context.Context, logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("trace_id", TraceIDFromContext(ctx)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
