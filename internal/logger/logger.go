// Copyright 2026 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the leveled, rotated logging front-end every component
// of a pod/service logs through: TRACE/DEBUG/INFO/WARNING/ERROR severities
// over log/slog, with gopkg.in/natefinch/lumberjack.v2 handling on-disk
// rotation when a log file is configured.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity is one of the six textual levels spec.md's ambient logging
// carries; it does not map one-to-one onto slog.Level (TRACE and OFF have
// no slog equivalent), so levels below are defined relative to slog.LevelDebug.
type Severity string

const (
	Trace   Severity = "TRACE"
	Debug   Severity = "DEBUG"
	Info    Severity = "INFO"
	Warning Severity = "WARNING"
	Error   Severity = "ERROR"
	Off     Severity = "OFF"
)

const (
	LevelTrace = slog.LevelDebug - 4
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(1000)
)

// RotateConfig controls lumberjack's on-disk rotation behavior.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig matches the teacher's own default log-rotation policy.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: true}
}

type factory struct {
	level  *slog.LevelVar
	format string // "text" or "json"
	writer io.Writer
	file   *lumberjack.Logger
}

var defaultFactory = &factory{level: levelVar(Info), format: "text", writer: os.Stderr}
var defaultLogger = slog.New(defaultFactory.handler())

func levelVar(s Severity) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(toSlogLevel(s))
	return v
}

func toSlogLevel(s Severity) slog.Level {
	switch s {
	case Trace:
		return LevelTrace
	case Debug:
		return LevelDebug
	case Info:
		return LevelInfo
	case Warning:
		return LevelWarn
	case Error:
		return LevelError
	default:
		return LevelOff
	}
}

func (f *factory) handler() slog.Handler {
	opts := &slog.HandlerOptions{Level: f.level, ReplaceAttr: replaceSeverity}
	if f.format == "json" {
		return slog.NewJSONHandler(f.writer, opts)
	}
	return slog.NewTextHandler(f.writer, opts)
}

// replaceSeverity renames slog's "level" key to "severity" and spells TRACE
// out explicitly, since slog has no native level below Debug.
func replaceSeverity(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	lvl := a.Value.Any().(slog.Level)
	switch {
	case lvl <= LevelTrace:
		a.Value = slog.StringValue(string(Trace))
	case lvl < LevelInfo:
		a.Value = slog.StringValue(string(Debug))
	case lvl < LevelWarn:
		a.Value = slog.StringValue(string(Info))
	case lvl < LevelError:
		a.Value = slog.StringValue(string(Warning))
	default:
		a.Value = slog.StringValue(string(Error))
	}
	a.Key = "severity"
	return a
}

// SetLevel sets the active severity threshold; it can be called at runtime
// without swapping the logger out from under in-flight callers (LevelVar is
// safe for concurrent use).
func SetLevel(s Severity) {
	defaultFactory.level.Set(toSlogLevel(s))
}

// SetFormat switches between "text" and "json" output, rebuilding the
// default logger's handler (the writer/file/level stay as configured).
func SetFormat(format string) {
	if format != "json" {
		format = "text"
	}
	defaultFactory.format = format
	defaultLogger = slog.New(defaultFactory.handler())
}

// InitLogFile points the default logger at a rotated on-disk file. Passing
// an empty path reverts to stderr.
func InitLogFile(path string, rotate RotateConfig) error {
	if path == "" {
		defaultFactory.file = nil
		defaultFactory.writer = os.Stderr
		defaultLogger = slog.New(defaultFactory.handler())
		return nil
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotate.MaxFileSizeMB,
		MaxBackups: rotate.BackupFileCount,
		Compress:   rotate.Compress,
	}
	defaultFactory.file = lj
	defaultFactory.writer = lj
	defaultLogger = slog.New(defaultFactory.handler())
	return nil
}

func logf(ctx context.Context, level slog.Level, format string, v ...any) {
	if !defaultLogger.Enabled(ctx, level) {
		return
	}
	defaultLogger.Log(ctx, level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...any) { logf(context.Background(), LevelTrace, format, v...) }
func Debugf(format string, v ...any) { logf(context.Background(), LevelDebug, format, v...) }
func Infof(format string, v ...any)  { logf(context.Background(), LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { logf(context.Background(), LevelWarn, format, v...) }
func Errorf(format string, v ...any) { logf(context.Background(), LevelError, format, v...) }

// Logger is the narrow interface components accept, so tests can swap in a
// recording stub rather than depend on this package's process-global state.
type Logger interface {
	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type defaultLoggerAdapter struct{}

func (defaultLoggerAdapter) Tracef(format string, v ...any) { Tracef(format, v...) }
func (defaultLoggerAdapter) Debugf(format string, v ...any) { Debugf(format, v...) }
func (defaultLoggerAdapter) Infof(format string, v ...any)  { Infof(format, v...) }
func (defaultLoggerAdapter) Warnf(format string, v ...any)  { Warnf(format, v...) }
func (defaultLoggerAdapter) Errorf(format string, v ...any) { Errorf(format, v...) }

// Default returns a Logger bound to this package's process-global state.
func Default() Logger { return defaultLoggerAdapter{} }
