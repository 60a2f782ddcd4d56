// Package logging provides the process-wide structured logger.
//
// All output goes to stderr: stdout is reserved for the run driver's
// JSONL event stream (C14), so nothing in this package may write there.
package logging

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu     sync.RWMutex
	logger *log.Logger
)

// Initialize sets up the global logger. debugMode also honors the
// ASP_DEBUG=1 environment variable when debugMode is false.
func Initialize(debugMode bool) {
	mu.Lock()
	defer mu.Unlock()

	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	if debugMode || os.Getenv("ASP_DEBUG") == "1" {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}

	logger = l
}

func get() *log.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Initialize(false)
		mu.RLock()
		l = logger
		mu.RUnlock()
	}
	return l
}

// Info logs an informational message, always shown.
func Info(msg string, keyvals ...interface{}) {
	get().Info(msg, keyvals...)
}

// Debug logs a debug message, shown only when debug mode is enabled.
func Debug(msg string, keyvals ...interface{}) {
	get().Debug(msg, keyvals...)
}

// Error logs an error message, always shown.
func Error(msg string, keyvals ...interface{}) {
	get().Error(msg, keyvals...)
}

// Warn logs a warning message, always shown.
func Warn(msg string, keyvals ...interface{}) {
	get().Warn(msg, keyvals...)
}

// IsDebugEnabled reports whether debug-level logging is active.
func IsDebugEnabled() bool {
	return get().GetLevel() == log.DebugLevel
}
