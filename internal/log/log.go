// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package log wires zap with a console encoder for stderr, optionally
// tee'd into a lumberjack rotating file sink when a log file path is
// configured.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process-wide logger.
type Options struct {
	Level      string // "debug", "info", "warn", "error"
	FilePath   string // empty => stderr only
	MaxSizeMB  int
	MaxBackups int
}

func levelFromString(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// New builds the server-wide logger singleton. It is initialized before
// accepting connections and synced on shutdown.
func New(opts Options) (*zap.Logger, error) {
	level := levelFromString(opts.Level)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(rotator), level))
	}
	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
