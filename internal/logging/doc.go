// Package logging assembles the structured slog loggers used across
// livelink commands.
//
// It owns the console and JSON handlers, centralizes level parsing, and
// exposes attr helpers so pipeline code tags log lines consistently. A no-op
// logger is provided for tests.
package logging
