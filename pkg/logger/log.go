package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultMaxSizeMB caps the log file before it is rotated.
const DefaultMaxSizeMB = 2048

// File configures the optional log file. An empty Path logs to stdout only.
type File struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger builds the console logger used by the server and the CLI.
// When file.Path is set, output is duplicated into a size capped file that
// rotates once it reaches MaxSizeMB.
func NewLogger(level string, file File) *zap.Logger {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl = zap.NewAtomicLevelAt(parsed)
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl)}
	if w := fileWriter(file); w != nil {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), lvl))
	}

	return zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
}

func fileWriter(file File) *lumberjack.Logger {
	if file.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(file.Path), 0o755); err != nil {
		return nil
	}
	maxSize := file.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}
	backups := file.MaxBackups
	if backups <= 0 {
		// lumberjack treats zero as unlimited.
		backups = 1
	}
	return &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    maxSize,
		MaxBackups: backups,
		LocalTime:  true,
	}
}
