//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package log provides the logger used across trpc-prefixcache-go.
//
// The default logger writes through a zap SugaredLogger. Applications may
// replace Default with their own implementation before serving traffic.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal logging surface used by this module.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Default is the logger used by all packages in this module.
var Default Logger = New(zapcore.InfoLevel)

// New creates a zap-backed logger writing to stderr at the given level.
func New(level zapcore.Level) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	return &zapLogger{sugared: zap.New(core).Sugar()}
}

// SetLevel replaces Default with a logger at the given level.
// Unrecognized level strings fall back to info.
func SetLevel(level string) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	Default = New(parsed)
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

func (l *zapLogger) Debugf(format string, args ...any) {
	l.sugared.Debugf(format, args...)
}

func (l *zapLogger) Infof(format string, args ...any) {
	l.sugared.Infof(format, args...)
}

func (l *zapLogger) Warnf(format string, args ...any) {
	l.sugared.Warnf(format, args...)
}

func (l *zapLogger) Errorf(format string, args ...any) {
	l.sugared.Errorf(format, args...)
}

func (l *zapLogger) Fatalf(format string, args ...any) {
	l.sugared.Fatalf(format, args...)
}

// Debugf logs a debug message via Default.
func Debugf(format string, args ...any) {
	Default.Debugf(format, args...)
}

// Infof logs an info message via Default.
func Infof(format string, args ...any) {
	Default.Infof(format, args...)
}

// Warnf logs a warning message via Default.
func Warnf(format string, args ...any) {
	Default.Warnf(format, args...)
}

// Errorf logs an error message via Default.
func Errorf(format string, args ...any) {
	Default.Errorf(format, args...)
}

// Fatalf logs a fatal message via Default and exits.
func Fatalf(format string, args ...any) {
	Default.Fatalf(format, args...)
}
