package logging

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnv selects the daemon log level ("debug", "info", ...).
const LevelEnv = "CHATSYNC_LOG_LEVEL"

// New creates a zap logger that writes JSON to the given log file path
// and also writes to stderr. Profile name and PID are included as initial fields.
func New(logPath, profileName string) (*zap.Logger, error) {
	return NewWithOutput(logPath, profileName, os.Stderr, LevelFromEnv())
}

// NewWithOutput is New with an explicit console writer and level.
func NewWithOutput(logPath, profileName string, console io.Writer, level zapcore.Level) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	fileCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(file), level)
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), level)

	core := zapcore.NewTee(fileCore, consoleCore)

	logger := zap.New(core,
		zap.Fields(
			zap.String("profile", profileName),
			zap.Int("pid", os.Getpid()),
		),
	)

	return logger, nil
}

// LevelFromEnv reads LevelEnv, defaulting to Info.
func LevelFromEnv() zapcore.Level {
	level := zapcore.InfoLevel
	if v := os.Getenv(LevelEnv); v != "" {
		if err := level.Set(v); err != nil {
			return zapcore.InfoLevel
		}
	}
	return level
}
