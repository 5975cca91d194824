package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global structured logger used throughout the service.
	Logger *zap.SugaredLogger
	// JSONOutput records whether the last Initialize call configured JSON output.
	JSONOutput bool
)

func init() {
	// Safe no-op logger so package-level helpers never see a nil Logger
	// before Initialize is called (e.g. in tests or early init paths).
	Logger = zap.NewNop().Sugar()
}

// Initialize configures the global logger. jsonOutput selects structured
// JSON records (for log aggregation) over a human-readable console encoder.
func Initialize(jsonOutput bool) error {
	return initialize(jsonOutput, zap.InfoLevel)
}

func initialize(jsonOutput bool, level zapcore.Level) error {
	JSONOutput = jsonOutput

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		zapLogger, err = config.Build()
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderConfig),
				zapcore.AddSync(os.Stdout),
				level,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// InitializeWithLevel is like Initialize but pins the minimum level explicitly,
// used by the CLI's -v/-vv/-vvv verbosity flags (see VerbosityToLevel).
func InitializeWithLevel(jsonOutput bool, level zapcore.Level) error {
	return initialize(jsonOutput, level)
}

// Cleanup flushes any buffered log entries. Errors from Sync on stdout/stderr
// are often spurious (EINVAL on some platforms) and safe to ignore.
func Cleanup() error {
	if Logger != nil {
		return Logger.Sync()
	}
	return nil
}

// Named returns a child logger scoped to the given component name.
func Named(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Warn(args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
