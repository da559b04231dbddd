// Package logger is the structured logger shared by every command. Messages
// take alternating key/value pairs.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
	Sync() error
}

// Redacted replaces the value of any secret-looking key.
const Redacted = "[REDACTED]"

var secretKeys = []string{"apikey", "adminkey", "password", "secret", "token"}

var keyNormalizer = strings.NewReplacer("-", "", "_", "")

type zapLogger struct {
	logger *zap.SugaredLogger
}

type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// New builds a logger from cfg. Logs go to stderr unless configured otherwise
// so that command output on stdout stays clean.
func New(cfg Config) Logger {
	config := zap.NewProductionConfig()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Format {
	case "json":
		config.Encoding = "json"
		config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	default:
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	switch cfg.Output {
	case "", "stderr":
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
	default:
		config.OutputPaths = []string{cfg.Output}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	config.DisableCaller = !cfg.AddCaller
	config.DisableStacktrace = !cfg.Stacktrace
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		logger = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(config.EncoderConfig),
			zapcore.Lock(os.Stderr),
			config.Level,
		))
	}

	return NewFromZap(logger)
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(logger *zap.Logger) Logger {
	return &zapLogger{logger: logger.Sugar()}
}

func NewNop() Logger {
	return NewFromZap(zap.NewNop())
}

func (l *zapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Debugw(msg, redact(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...interface{}) {
	l.logger.Infow(msg, redact(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Warnw(msg, redact(fields)...)
}

func (l *zapLogger) Error(msg string, fields ...interface{}) {
	l.logger.Errorw(msg, redact(fields)...)
}

func (l *zapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.Fatalw(msg, redact(fields)...)
	os.Exit(1)
}

func (l *zapLogger) With(fields ...interface{}) Logger {
	return &zapLogger{logger: l.logger.With(redact(fields)...)}
}

func (l *zapLogger) Sync() error {
	err := l.logger.Sync()
	// stderr cannot be synced on some platforms.
	if err != nil && strings.Contains(err.Error(), "/dev/stderr") {
		return nil
	}
	return err
}

// redact masks values whose key names a credential. It copies fields only
// when something has to be replaced.
func redact(fields []interface{}) []interface{} {
	var out []interface{}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok || !isSecretKey(key) {
			continue
		}
		if out == nil {
			out = append([]interface{}(nil), fields...)
		}
		out[i+1] = Redacted
	}
	if out == nil {
		return fields
	}
	return out
}

// isSecretKey matches key against secretKeys ignoring case and "-"/"_" separators.
func isSecretKey(key string) bool {
	key = keyNormalizer.Replace(strings.ToLower(key))
	for _, secret := range secretKeys {
		if strings.Contains(key, secret) {
			return true
		}
	}
	return false
}
