// Package ui renders terminal output for the pettracer-live CLI.
//
// Two kinds of output live here:
//
//   - One-shot boxes (Header, Result, Printer) used by commands such as
//     `config init`, `discover` and `decode` that print and exit.
//   - The interactive `watch` dashboard, a Bubble Tea program built from
//     the bubbles table, spinner, progress and help components.
//
// The dashboard reads a Source. LocalSource wraps an in-process tracker
// and also pushes refreshes on every device update or state change.
// RemoteSource polls a query API found by address or mDNS discovery.
//
//	src := ui.RemoteSource{Client: api.NewClient("http://pi.local:8780")}
//	if err := ui.RunDashboard(ctx, src, 2*time.Second); err != nil {
//	    return err
//	}
//
// # Logging Integration
//
// Zap logging is silent unless PETTRACER_LOG_LEVEL is set, so the styled
// output is not interleaved with log lines. The dashboard uses the
// alternate screen; enable a log file when debugging it.
package ui
