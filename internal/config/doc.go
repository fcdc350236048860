// Package config loads and saves the pettracer-live YAML configuration.
//
// # Configuration File Location
//
// The file lives in a platform-appropriate location:
//   - Linux: $XDG_CONFIG_HOME/pettracer/config.yaml or $HOME/.config/pettracer/config.yaml
//   - macOS: $HOME/.config/pettracer/config.yaml
//   - Windows: %LOCALAPPDATA%\pettracer\config.yaml
//
// A missing file is not an error; Load returns Default(). Partial files
// are completed with defaults before validation.
//
// # Security
//
// The vendor access token and the MQTT password are never written to
// the file. They are read from flags, the environment or a prompt.
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sup := channel.NewSupervisor(cfg.ChannelSettings(), onMessage, onState)
//
// Durations are written in Go notation ("45s", "5m0s").
package config
