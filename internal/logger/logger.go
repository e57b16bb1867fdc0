// Package logger provides structured logging for the graphql-ws handler
// using zap. It supports JSON output for log aggregation and a console
// mode for local development.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	globalSugar  *zap.SugaredLogger
	once         sync.Once
)

// Config holds logger configuration options.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Development enables development mode (console output, stack traces).
	Development bool
	// JSONOutput enables JSON output format (for production log aggregation).
	JSONOutput bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		JSONOutput: true,
	}
}

// DevelopmentConfig returns configuration for development mode.
func DevelopmentConfig() *Config {
	return &Config{
		Level:       "debug",
		Development: true,
		JSONOutput:  false,
	}
}

// Init initializes the global logger with the given configuration.
// It is safe to call multiple times; only the first call takes effect.
func Init(cfg *Config) {
	once.Do(func() {
		if cfg == nil {
			cfg = DefaultConfig()
		}
		globalLogger = newLogger(cfg)
		globalSugar = globalLogger.Sugar()
	})
}

func newLogger(cfg *Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.JSONOutput {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return zap.New(core, opts...)
}

// L returns the global logger, initializing it with defaults if needed.
func L() *zap.Logger {
	if globalLogger == nil {
		Init(nil)
	}
	return globalLogger
}

// S returns the global sugared logger, initializing it with defaults if needed.
func S() *zap.SugaredLogger {
	if globalSugar == nil {
		Init(nil)
	}
	return globalSugar
}

// Sync flushes any buffered log entries.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// WithSession returns a logger tagged with a session id.
func WithSession(sessionID string) *zap.Logger {
	return L().With(zap.String("session_id", sessionID))
}

// WithOperation returns a logger tagged with session and operation ids.
func WithOperation(sessionID, operationID string) *zap.Logger {
	return L().With(zap.String("session_id", sessionID), zap.String("operation_id", operationID))
}
