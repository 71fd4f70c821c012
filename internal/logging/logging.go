// Package logging builds the zap loggers used by the vitalwatch binaries.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitalwatch/monitor/internal/config"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a zap level.
// Anything else is info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// NewFileLogger writes to a rotating file. The terminal UI owns stdout, so
// the client never logs there unless cfg.Console is set.
func NewFileLogger(cfg config.LogConfig, serviceName string) *zap.Logger {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	sink := zapcore.AddSync(rotator)
	if cfg.Console {
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.Lock(os.Stderr))
	}

	core := zapcore.NewCore(encoder(cfg.Format), sink, zap.NewAtomicLevelAt(ParseLevel(cfg.Level)))
	return decorate(zap.New(core, zap.AddCaller()), serviceName)
}

// NewStdoutLogger writes to stdout, for the development backend.
func NewStdoutLogger(cfg config.LogConfig, serviceName string) *zap.Logger {
	core := zapcore.NewCore(encoder(cfg.Format), zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(ParseLevel(cfg.Level)))
	return decorate(zap.New(core, zap.AddCaller()), serviceName)
}

func decorate(l *zap.Logger, serviceName string) *zap.Logger {
	if serviceName != "" {
		l = l.With(zap.String("service_name", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		l = l.With(zap.String("hostname", hostname))
	}
	return l
}
