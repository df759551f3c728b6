package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	scierrors "github.com/YuminosukeSato/scigam/pkg/errors"
)

// zerologLogger adapts zerolog.Logger to the Logger interface. min, when
// set, is the provider's threshold and is read on every call.
type zerologLogger struct {
	logger zerolog.Logger
	min    *atomic.Int32
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{logger: l}
}

func (z *zerologLogger) Debug(msg string, fields ...any) {
	if z.allowed(zerolog.DebugLevel) {
		z.emit(z.logger.Debug(), msg, fields)
	}
}

func (z *zerologLogger) Info(msg string, fields ...any) {
	if z.allowed(zerolog.InfoLevel) {
		z.emit(z.logger.Info(), msg, fields)
	}
}

func (z *zerologLogger) Warn(msg string, fields ...any) {
	if z.allowed(zerolog.WarnLevel) {
		z.emit(z.logger.Warn(), msg, fields)
	}
}

func (z *zerologLogger) Error(msg string, fields ...any) {
	if z.allowed(zerolog.ErrorLevel) {
		z.emit(z.logger.Error(), msg, fields)
	}
}

func (z *zerologLogger) allowed(level zerolog.Level) bool {
	return z.min == nil || level >= zerolog.Level(z.min.Load())
}

func (z *zerologLogger) With(fields ...any) Logger {
	_, fields = splitLeadingError(fields)
	if len(fields) == 0 {
		return z
	}
	return &zerologLogger{logger: z.logger.With().Fields(fields).Logger(), min: z.min}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	zl := toZerologLevel(level)
	return z.allowed(zl) && zl >= z.logger.GetLevel() && zl >= zerolog.GlobalLevel()
}

func (z *zerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	err, fields := splitLeadingError(fields)
	if err != nil {
		ev = ev.Err(err)
		if st := extractStacktrace(err); st != "" {
			ev = ev.Str(StacktraceAttrKey, st)
		}
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

// splitLeadingError separates an error passed as the first field from
// the key/value pairs that follow it.
func splitLeadingError(fields []any) (error, []any) {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			return err, fields[1:]
		}
	}
	return nil, fields
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// zerologProvider is the default LoggerProvider. It starts at Info;
// debug output is enabled with SetLevel.
type zerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
	min  atomic.Int32
}

func newZerologProvider(w io.Writer) *zerologProvider {
	p := &zerologProvider{base: zerolog.New(w).With().Timestamp().Logger()}
	p.min.Store(int32(zerolog.InfoLevel))
	return p
}

func (p *zerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{logger: p.base, min: &p.min}
}

func (p *zerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{logger: p.base.With().Str(ComponentKey, name).Logger(), min: &p.min}
}

// SetLevel sets the minimum level of every logger handed out by p,
// including those created earlier.
func (p *zerologProvider) SetLevel(level Level) {
	p.min.Store(int32(toZerologLevel(level)))
}

func (p *zerologProvider) setOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = zerolog.New(w).With().Timestamp().Logger()
}

var providerMu sync.RWMutex

var defaultProvider = newZerologProvider(os.Stderr)

var provider LoggerProvider = defaultProvider

func init() {
	scierrors.SetZerologWarnFunc(emitWarning)
}

// GetLogger returns a logger from the active provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with ComponentKey=name.
// Loggers capture the provider state at creation time.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level of the active provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}

// SetOutput redirects the default zerolog provider to w.
func SetOutput(w io.Writer) {
	defaultProvider.setOutput(w)
}

// SetProvider replaces the active provider. Passing nil restores the zerolog default.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	if p == nil {
		provider = defaultProvider
		return
	}
	provider = p
}

// emitWarning is installed as the warning sink of pkg/errors.
func emitWarning(w error) {
	l := GetLoggerWithName("warnings")
	if zl, ok := l.(*zerologLogger); ok {
		if !zl.allowed(zerolog.WarnLevel) {
			return
		}
		ev := zl.logger.Warn()
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			ev = ev.Object(WarningKey, m)
		}
		ev.Msg(w.Error())
		return
	}
	l.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w))
}
