// Package logging provides structured logging for pettracer-live.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the live channel: connection lifecycle events,
// supervisor state changes and raw frame dumps.
//
// # Log Levels
//
//   - Debug: heartbeats, raw frames, per-field merge details
//   - Info: connection attempts, state changes, subscriptions
//   - Warn: skipped frames, rejected device updates, unknown mode codes
//   - Error: failures that end a connection attempt
//
// # Silent By Default
//
// Without a level (flag, config file or PETTRACER_LOG_LEVEL) the logger is a
// no-op so that CLI output stays clean.
//
// # File Output
//
// When Options.File is set, entries are additionally written as JSON to a
// size-rotated file:
//
//	err := logging.InitializeWithOptions(logging.Options{
//	    Level:      "info",
//	    File:       "/var/log/pettracer-live.log",
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	})
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
