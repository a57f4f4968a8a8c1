// Package logger is the process-wide log sink.
//
// Messages carry a bracketed component tag, e.g. "[INGEST] fetched 12 rows".
package logger

import (
	"os"

	"github.com/yanun0323/logs"
)

// Info logs an informational message.
func Info(format string, v ...any) {
	logs.Infof(format, v...)
}

// Warn logs a recoverable problem.
func Warn(format string, v ...any) {
	logs.Warnf(format, v...)
}

// Error logs a failure.
func Error(format string, v ...any) {
	logs.Errorf(format, v...)
}

// Fatal logs a failure and exits with status 1.
func Fatal(format string, v ...any) {
	logs.Errorf(format, v...)
	os.Exit(1)
}
