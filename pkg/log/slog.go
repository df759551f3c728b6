package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// SetupLogger installs a slog JSON handler as the process default and
// routes scigam loggers through it.
func SetupLogger(loglevel string) error {
	return SetupLoggerTo(os.Stdout, loglevel)
}

// SetupLoggerTo is SetupLogger with an explicit destination.
func SetupLoggerTo(w io.Writer, loglevel string) error {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return err
	}
	p := &slogProvider{}
	p.level.Set(level)
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     &p.level,
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr.Key = "severity"
			case slog.MessageKey:
				attr.Key = "message"
			case slog.SourceKey:
				attr.Key = "logging.googleapis.com/sourceLocation"
			}
			return attr
		},
	}
	p.logger = slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops)))
	slog.SetDefault(p.logger)
	SetProvider(p)
	return nil
}

// ToLogLevel parses "debug", "info", "warn" or "error".
func ToLogLevel(level string) (slog.Level, error) {
	switch level {
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// ErrFmtHandler is a slog handler that adds the cockroachdb/errors stacktrace
// of the ErrAttrKey attribute to the record.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler with ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var stacktrace string
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		if err, ok := attr.Value.Any().(error); ok {
			stacktrace = extractStacktrace(err)
		}
		return false
	})
	if stacktrace != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stacktrace))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	logger *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.logger.Debug(msg, slogArgs(fields)...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.logger.Info(msg, slogArgs(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.logger.Warn(msg, slogArgs(fields)...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.logger.Error(msg, slogArgs(fields)...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{logger: s.logger.With(slogArgs(fields)...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.logger.Enabled(ctx, slog.Level(level))
}

func slogArgs(fields []any) []any {
	err, rest := splitLeadingError(fields)
	if err == nil {
		return rest
	}
	return append([]any{ErrAttr(err)}, rest...)
}

type slogProvider struct {
	logger *slog.Logger
	level  slog.LevelVar
}

func (p *slogProvider) GetLogger() Logger {
	return &slogLogger{logger: p.logger}
}

func (p *slogProvider) GetLoggerWithName(name string) Logger {
	return &slogLogger{logger: p.logger.With(ComponentKey, name)}
}

func (p *slogProvider) SetLevel(level Level) {
	p.level.Set(slog.Level(level))
}
