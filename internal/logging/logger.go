// Package logging builds the zap logger used across the service.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how the logger is assembled.
type Config struct {
	Development bool
	FilePath    string // empty disables file output
}

// New builds a zap.Logger that writes to the console and, if FilePath is
// set, to a rotating log file.
func New(cfg Config) *zap.Logger {
	var cores []zapcore.Core

	consoleEncoder := consoleEncoderFor(cfg.Development)
	consoleLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Development {
		consoleLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), consoleLevel))

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), zap.NewAtomicLevelAt(zapcore.DebugLevel)))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(0))
}

func consoleEncoderFor(development bool) zapcore.Encoder {
	if !development {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}
