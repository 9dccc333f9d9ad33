package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger. Verbose runs get JSON debug output on
// stderr; otherwise only warnings and errors are logged, and nothing at all
// with --quiet.
func newLogger(globals *Globals) *zap.Logger {
	if globals == nil || (globals.Quiet && !globals.Verbose) {
		return zap.NewNop()
	}
	level := zapcore.WarnLevel
	if globals.Verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(globals.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core)
}
