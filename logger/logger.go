// Package logger provides structured logging for the willow session core.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance.
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether structured JSON output is enabled.
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so early use never panics.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. jsonOutput selects machine-readable
// structured output (for `willow serve` under a supervisor); otherwise a
// calm, human-readable console encoder is used.
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = config.Build()
	} else {
		zapLogger = zap.New(
			zapcore.NewCore(
				newConsoleEncoder(),
				zapcore.AddSync(os.Stdout),
				zap.InfoLevel,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// InitializeAt builds a logger at an explicit level, used by the CLI's -v/-vv
// verbosity flags (see verbosity.go).
func InitializeAt(level zapcore.Level) error {
	zapLogger := zap.New(
		zapcore.NewCore(
			newConsoleEncoder(),
			zapcore.AddSync(os.Stdout),
			level,
		),
	)
	Logger = zapLogger.Sugar()
	return nil
}

// Cleanup flushes any buffered log entries. Sync often returns EINVAL on
// stdout/stderr for terminal file descriptors; callers may ignore the error.
func Cleanup() error {
	if Logger != nil {
		return Logger.Sync()
	}
	return nil
}

func Info(args ...interface{})                        { Logger.Info(args...) }
func Infof(format string, args ...interface{})         { Logger.Infof(format, args...) }
func Infow(msg string, kv ...interface{})              { Logger.Infow(msg, kv...) }
func Error(args ...interface{})                        { Logger.Error(args...) }
func Errorf(format string, args ...interface{})        { Logger.Errorf(format, args...) }
func Errorw(msg string, kv ...interface{})             { Logger.Errorw(msg, kv...) }
func Warn(args ...interface{})                         { Logger.Warn(args...) }
func Warnf(format string, args ...interface{})         { Logger.Warnf(format, args...) }
func Warnw(msg string, kv ...interface{})              { Logger.Warnw(msg, kv...) }
func Debug(args ...interface{})                        { Logger.Debug(args...) }
func Debugf(format string, args ...interface{})        { Logger.Debugf(format, args...) }
func Debugw(msg string, kv ...interface{})             { Logger.Debugw(msg, kv...) }
