package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"` // console | json
	Service    string `mapstructure:"service"`
	File       string `mapstructure:"file"` // optional rotating file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Logger wraps zap.Logger
type Logger struct {
	*zap.Logger
	alerts *alertTarget
}

// New builds a logger writing to stdout and, when configured, to a rotating file.
func New(cfg Config) (*Logger, error) {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if cfg.Encoding == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.TimeKey = "ts"
		encCfg.LevelKey = "level"
		encCfg.MessageKey = "msg"
		encCfg.CallerKey = "caller"
		encCfg.StacktraceKey = "stacktrace"
		encCfg.NameKey = "logger"
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	level := zap.NewAtomicLevel()
	lvl := cfg.Level
	if lvl == "" {
		lvl = "info"
	}
	if err := level.UnmarshalText([]byte(lvl)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	if cfg.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		}))
	}

	target := &alertTarget{}
	core := &AlertCore{
		core:     zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level),
		target:   target,
		minLevel: zapcore.WarnLevel,
	}

	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return &Logger{Logger: l, alerts: target}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), alerts: &alertTarget{}}
}

// NewWithCore is used by tests that need to observe entries.
func NewWithCore(core zapcore.Core) *Logger {
	target := &alertTarget{}
	return &Logger{
		Logger: zap.New(&AlertCore{core: core, target: target, minLevel: zapcore.WarnLevel}),
		alerts: target,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// SetAlertSink routes entries marked with Alert() to sink.
func (l *Logger) SetAlertSink(sink AlertSink) {
	if l.alerts != nil {
		l.alerts.set(sink)
	}
}

// With creates a child logger with the given fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), alerts: l.alerts}
}

// FromContext retrieves a logger from context if it exists, or returns l
func (l *Logger) FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	fromCtx, ok := ctx.Value(loggerContextKey).(*Logger)
	if !ok || fromCtx == nil {
		return l
	}
	return fromCtx
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Logger.Debug(msg, fields...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.FromContext(ctx).Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) { l.Logger.Info(msg, fields...) }

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.FromContext(ctx).Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) { l.Logger.Warn(msg, fields...) }

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.FromContext(ctx).Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) { l.Logger.Error(msg, fields...) }

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.FromContext(ctx).Error(msg, fields...)
}

func (l *Logger) Sync() error { return l.Logger.Sync() }

func Field(key string, value interface{}) zap.Field { return zap.Any(key, value) }

func StringField(key, value string) zap.Field { return zap.String(key, value) }

func FloatField(key string, value float64) zap.Field { return zap.Float64(key, value) }

func IntField(key string, value int) zap.Field { return zap.Int(key, value) }

func ErrorField(err error) zap.Field { return zap.Error(err) }

type contextKey string

const loggerContextKey contextKey = "logger"

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}
