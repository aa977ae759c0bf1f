// Package telemetry wires up structured logging for the service, matching
// the teacher's use of log/slog throughout.
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide structured logger. json selects the
// production JSON handler; otherwise a text handler is used for local runs.
func NewLogger(json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
