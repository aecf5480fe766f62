package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/efebarandurmaz/ragline/internal/errortypes"
)

type ctxKey struct{}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// NewLogger builds a logger that adds request_id from the context to every record.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(&contextHandler{Handler: h})
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Logger returns the default logger bound to ctx so that request-scoped
// attributes are emitted by the context handler.
func Logger(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, l: slog.Default()}
}

// ContextLogger logs through slog.Default with a fixed context.
type ContextLogger struct {
	ctx context.Context
	l   *slog.Logger
}

func (c *ContextLogger) Debug(msg string, args ...any) { c.l.DebugContext(c.ctx, msg, args...) }
func (c *ContextLogger) Info(msg string, args ...any)  { c.l.InfoContext(c.ctx, msg, args...) }
func (c *ContextLogger) Warn(msg string, args ...any)  { c.l.WarnContext(c.ctx, msg, args...) }
func (c *ContextLogger) Error(msg string, args ...any) { c.l.ErrorContext(c.ctx, msg, args...) }

func errorKind(err error) string {
	if k := errortypes.KindOf(err); k != "" {
		return string(k)
	}
	return "unknown"
}
