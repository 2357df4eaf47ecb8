package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/angelmondragon/kolo-backend/pkg/env"
)

// Field keys shared across services so log queries work the same everywhere.
const (
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldGroupID   = "group_id"
	FieldReference = "reference_id"
	FieldEventID   = "event_id"
	FieldActorRole = "actor_role"
)

const redacted = "[redacted]"

// sensitiveKeys never reach the log sink with their real value.
var sensitiveKeys = map[string]bool{
	"authorization":  true,
	"password":       true,
	"secret":         true,
	"token":          true,
	"verif-hash":     true,
	"account_number": true,
	"bvn":            true,
	"card_number":    true,
}

// Options configures the structured logger. Format is "json" or "console";
// when empty it is read from KOLO_LOG_FORMAT, then LOG_FORMAT.
type Options struct {
	ServiceName string
	Environment string
	Format      string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
	// File additionally writes JSON lines to a size-rotated file. Cloud Run
	// deployments leave it empty and rely on stdout.
	File FileOptions
}

// FileOptions sizes the rotated log file. Zero values fall back to
// 100MB per file, 5 backups and 14 days.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (f FileOptions) writer() *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAgeDays,
		Compress:   f.Compress,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 100
	}
	if w.MaxBackups <= 0 {
		w.MaxBackups = 5
	}
	if w.MaxAge <= 0 {
		w.MaxAge = 14
	}
	return w
}

// Logger carries per-request fields through context.Context. Every method
// accepts a ctx that may or may not hold an enriched entry.
type Logger struct {
	base      *zerolog.Logger
	warnStack bool
	file      io.Closer
}

type ctxKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format, _ = env.Lookup("KOLO_LOG_FORMAT", "LOG_FORMAT")
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    env.Bool("NO_COLOR", false),
		}
	}

	var file *lumberjack.Logger
	if opts.File.Path != "" {
		file = opts.File.writer()
		out = zerolog.MultiLevelWriter(out, file)
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	ctx := zerolog.New(out).With().Timestamp().Str("service", opts.ServiceName)
	if opts.Environment != "" {
		ctx = ctx.Str("env", opts.Environment)
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	base := ctx.Logger().Level(level)

	l := &Logger{base: &base, warnStack: opts.WarnStack}
	if file != nil {
		l.file = file
	}
	return l
}

// Close releases the rotated log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config string to a level. Unknown or blank values mean info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if e, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return e
		}
	}
	return l.base
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	next := build(l.entry(ctx).With()).Logger()
	return context.WithValue(ctx, ctxKey{}, &next)
}

func fieldValue(key string, value any) any {
	if sensitiveKeys[strings.ToLower(key)] {
		return redacted
	}
	return value
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, fieldValue(key, value))
	})
}

// WithFields adds fields in key order so repeated calls render identically.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		for _, k := range keys {
			c = c.Interface(k, fieldValue(k, fields[k]))
		}
		return c
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, FieldRequestID, requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, FieldUserID, userID)
}

func (l *Logger) WithGroupID(ctx context.Context, groupID string) context.Context {
	return l.WithField(ctx, FieldGroupID, groupID)
}

// WithReference tags the payment or ledger reference being processed.
func (l *Logger) WithReference(ctx context.Context, reference string) context.Context {
	return l.WithField(ctx, FieldReference, reference)
}

func (l *Logger) WithEventID(ctx context.Context, eventID string) context.Context {
	return l.WithField(ctx, FieldEventID, eventID)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.WithField(ctx, FieldActorRole, role)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.entry(ctx).Info().Msg(msg)
}

// Debug is used for high-volume diagnostics such as webhook payload routing.
func (l *Logger) Debug(ctx context.Context, msg string) {
	l.entry(ctx).Debug().Msg(msg)
}

// Warn attaches a stack only when WarnStack is enabled.
func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.entry(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

// Error always carries a stack.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.entry(ctx).Error()
	if err != nil {
		event = event.Err(err)
	}
	event.Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
