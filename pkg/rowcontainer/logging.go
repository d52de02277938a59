package rowcontainer

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// nopLogger backs every Container that is not given an explicit
// Logger: callers embedding the row container in a larger executor
// (as the teacher's pkg/compute operators do with util.Error/util.Info
// around zap) are expected to pass their own, but a container built
// standalone or in a test must never crash on a nil logger access.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}

// NewRotatingLogger builds a zap.Logger that writes JSON-encoded
// entries through a lumberjack.Logger, the rotation strategy the
// wider example pack uses ahead of a raw os.File: bounded size,
// bounded backups, age-based cleanup, so a long-running aggregation
// or join build never fills a disk with row-container diagnostics.
func NewRotatingLogger(path string, maxSizeMB, maxBackups, maxAgeDays int) *zap.Logger {
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(sink),
		zapcore.InfoLevel,
	)
	return zap.New(core)
}
