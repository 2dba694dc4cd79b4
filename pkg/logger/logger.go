// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the logging capability for openauthd.
//
// This is a thin shim over log/slog that maintains a process-wide default.
// New code should inject *slog.Logger directly; use [Get] to obtain the
// underlying logger for injection.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[slog.Logger]

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	singleton.Store(slog.New(newHandler(os.Stderr)))
}

func get() *slog.Logger {
	return singleton.Load()
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return get()
}

// Set replaces the package-level logger. Intended for tests.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// Initialize creates the package-level logger. Structured JSON output is the
// default; set UNSTRUCTURED_LOGS=true for human-readable text output.
func Initialize() {
	singleton.Store(slog.New(newHandler(os.Stderr)))
	slog.SetDefault(get())
}

func newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level()}
	if unstructuredLogs() {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func level() slog.Level {
	if debugEnabled() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func debugEnabled() bool {
	v, err := strconv.ParseBool(os.Getenv("DEBUG"))
	return err == nil && v
}

func unstructuredLogs() bool {
	v, err := strconv.ParseBool(os.Getenv("UNSTRUCTURED_LOGS"))
	return err == nil && v
}

// Debug logs a message at debug level.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs a message at info level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs a message at warn level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs a message at error level.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// Debugw logs a message at debug level with structured key/value pairs.
func Debugw(msg string, keysAndValues ...any) { get().Debug(msg, keysAndValues...) }

// Infow logs a message at info level with structured key/value pairs.
func Infow(msg string, keysAndValues ...any) { get().Info(msg, keysAndValues...) }

// Warnw logs a message at warn level with structured key/value pairs.
func Warnw(msg string, keysAndValues ...any) { get().Warn(msg, keysAndValues...) }

// Errorw logs a message at error level with structured key/value pairs.
func Errorw(msg string, keysAndValues ...any) { get().Error(msg, keysAndValues...) }
