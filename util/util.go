/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package util holds the process-wide logger and a few small helpers
// shared by the pipeline packages.
package util

import (
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger  atomic.Pointer[zap.Logger]
	tracing atomic.Bool
	debug   atomic.Bool
)

func init() {
	logger.Store(zap.NewNop())
}

// InitLogger builds the process logger.
//
// When stderr is a terminal we use the development console encoder
// (colored levels); otherwise JSON lines.  Trace implies debug.
func InitLogger(dbg, trace bool) error {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if dbg || trace {
		level.SetLevel(zap.DebugLevel)
	}

	var cfg zap.Config
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}
	cfg.Level = level
	cfg.DisableStacktrace = !trace

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(l)
	debug.Store(dbg || trace)
	tracing.Store(trace)
	return nil
}

// SetLogger replaces the process logger.  Tests use this with an
// observer core.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetTrace turns per-message tracing on or off.
func SetTrace(on bool) {
	tracing.Store(on)
}

// SetDebug turns debug messages on or off.
func SetDebug(on bool) {
	debug.Store(on)
}

// TraceEnabled reports whether Trace will emit anything.
func TraceEnabled() bool {
	return tracing.Load()
}

// DebugEnabled reports whether Debug will emit anything.
func DebugEnabled() bool {
	return debug.Load()
}

// Trace logs per-message processing details.  These are very chatty,
// so they are gated separately from debug.
func Trace(msg string, fields ...zap.Field) {
	if !tracing.Load() {
		return
	}
	logger.Load().Debug(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	if !debug.Load() {
		return
	}
	logger.Load().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	logger.Load().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	logger.Load().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	logger.Load().Error(msg, fields...)
}

// Logf is a silly utility function that logs a formatted message at
// debug level when debugging is on.
func Logf(format string, args ...interface{}) {
	if !debug.Load() {
		return
	}
	logger.Load().Sugar().Debugf(format, args...)
}
