// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack) for the rsctl CLI.
//
// Context
// -------
// The library itself logs through the process-global sugared logger
// (zap.S()), so embedding applications keep full control of sinks and
// levels.  rsctl installs this logger at boot: one rotating JSON file
// under <dir>/recordset.log, teed colorized to stdout when running in
// an interactive TTY.
//
// Usage
// -----
//
//	log, err := logger.New(dir, runningInTTY())
//	if err != nil { … }
//	log.Infow("registry loaded", "connections", n)
//
// Notes
// -----
// • Zap core uses ISO-8601 timestamps and lowercase levels.
// • Rotation and retention are Lumberjack's job; no logrotate needed.
// • Oxford commas, two spaces after periods.
package logger

import (
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a *zap.SugaredLogger writing JSON to <dir>/recordset.log.
// When tee == true, a colored console core is also attached.  The logger
// is installed as the process-wide default via zap.ReplaceGlobals so the
// library's zap.S() calls land in the same sinks.
func New(dir string, tee bool) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "recordset.log"),
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(fileSink),
			zap.DebugLevel,
		),
	}

	if tee {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.ErrorOutput(zapcore.AddSync(fileSink)),
	).Sugar()

	zap.ReplaceGlobals(z.Desugar())
	return z, nil
}
