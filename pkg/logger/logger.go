// Package logger is a thin zap wrapper with the engine's field vocabulary.
// Packages log through it and never import zap themselves.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a zap level.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// ParseLevel accepts the usual spellings and falls back to info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return l
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field is a zap field.
type Field = zap.Field

func String(key, v string) Field                 { return zap.String(key, v) }
func Int(key string, v int) Field                { return zap.Int(key, v) }
func Bool(key string, v bool) Field              { return zap.Bool(key, v) }
func Any(key string, v any) Field                { return zap.Any(key, v) }
func Duration(key string, v time.Duration) Field { return zap.String(key, v.String()) }

// Err is keyed "error". A nil error is skipped.
func Err(err error) Field { return zap.Error(err) }

func UserID(id string) Field         { return zap.String("user_id", id) }
func LessonID(id string) Field       { return zap.String("lesson_id", id) }
func LeagueID(id string) Field       { return zap.String("league_id", id) }
func AchievementCode(c string) Field { return zap.String("achievement", c) }
func XPAmount(xp int) Field          { return zap.Int("xp_amount", xp) }
func Step(name string) Field         { return zap.String("step", name) }
func Component(name string) Field    { return zap.String("component", name) }
func Latency(d time.Duration) Field  { return zap.Duration("latency", d) }

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// Options configures New.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
	Format    string // json or console
}

func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true, Format: "json"}
}

// Logger wraps a zap logger. The zero value is not usable; use New or Nop.
type Logger struct {
	zl *zap.Logger
}

// New builds a logger writing to opts.Output.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey, enc.MessageKey = "timestamp", "message"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewJSONEncoder(enc)
	if strings.EqualFold(opts.Format, "console") {
		encoder = zapcore.NewConsoleEncoder(enc)
	}

	var zo []zap.Option
	if opts.AddCaller {
		zo = append(zo, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{zl: zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), opts.Level), zo...)}
}

// NewFromZap wraps zl. Tests pass a zaptest observer core.
func NewFromZap(zl *zap.Logger) *Logger { return &Logger{zl: zl} }

// Nop discards everything.
func Nop() *Logger { return &Logger{zl: zap.NewNop()} }

func (l *Logger) With(fields ...Field) *Logger { return &Logger{zl: l.zl.With(fields...)} }

func (l *Logger) Debug(msg string, fields ...Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zl.Error(msg, fields...) }

// Sync flushes buffered entries. Call it before exit.
func (l *Logger) Sync() error { return l.zl.Sync() }

// WithRequestID tags every entry of one HTTP request.
func (l *Logger) WithRequestID(id string) *Logger { return l.With(zap.String("request_id", id)) }

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a default one.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(DefaultOptions())
}
