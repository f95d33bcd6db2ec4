// Package logger builds the process-wide zap logger. Console encoding on
// stderr; the service is operated from docker logs, not a log pipeline, so
// human-readable output beats JSON here.
package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(os.Stderr),
		zapcore.DebugLevel,
	)
	l := zap.New(core, zap.AddCaller())

	// Route the stdlib logger (used by some dependencies) through zap too.
	zap.ReplaceGlobals(l)
	log.SetOutput(zap.NewStdLog(l).Writer())

	return l
}
