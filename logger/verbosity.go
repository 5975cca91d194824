package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts
const (
	VerbosityUser  = 0 // No flags: user-facing output only
	VerbosityInfo  = 1 // -v: informational messages
	VerbosityDebug = 2 // -vv: debug messages
	VerbosityTrace = 3 // -vvv: same level as -vv
	VerbosityAll   = 4 // -vvvv: same level as -vv
)

// VerbosityToLevel maps verbosity flags (-v, -vv, etc.) to zap log levels
//
// Mapping:
//
//	0 (none)  -> WarnLevel  (errors and warnings only)
//	1 (-v)    -> InfoLevel  (+ informational messages)
//	2 (-vv)   -> DebugLevel (+ debug messages)
//	3+ (-vvv) -> DebugLevel (zap has no finer level; behaves the same as -vv)
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch verbosity {
	case VerbosityUser:
		return zapcore.WarnLevel
	case VerbosityInfo:
		return zapcore.InfoLevel
	case VerbosityDebug:
		return zapcore.DebugLevel
	case VerbosityTrace:
		return zapcore.DebugLevel
	case VerbosityAll:
		return zapcore.DebugLevel
	default:
		// For any verbosity > VerbosityAll, use DebugLevel
		return zapcore.DebugLevel
	}
}
