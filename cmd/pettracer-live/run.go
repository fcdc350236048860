package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/pettracer/internal/api"
	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/config"
	"github.com/muurk/pettracer/internal/discovery"
	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/publish"
	"github.com/muurk/pettracer/internal/session"
	"github.com/muurk/pettracer/internal/tracker"
	"github.com/muurk/pettracer/internal/ui"
	"github.com/muurk/pettracer/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run command flags
var (
	runToken      string
	runDevices    []int
	runCaptureDir string
	runListen     string
	runNoAPI      bool
	runAdvertise  bool
	runMQTTBroker string
	runDebugAPI   bool
	runDashboard  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the live channel and serve device state",
	Long: `Connect to the PetTracer live channel and keep it connected.

The connection is retried with exponential backoff (5s doubling to 5m)
after any failure. Device snapshots are served on the query API and,
when a broker is configured, published to MQTT.

Signals:
  SIGINT, SIGTERM  disconnect cleanly and exit
  SIGHUP           re-read devices.ids from the config file`,
	Example: `  # Track two collars with the token from the environment
  PETTRACER_TOKEN=... pettracer-live run --device 12345 --device 67890

  # Record every envelope for later analysis
  pettracer-live run --capture-dir ./captures --log-level debug

  # Publish to a local broker and advertise the API over mDNS
  pettracer-live run --mqtt-broker tcp://localhost:1883 --advertise`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runToken, "token", "", "Access token (default: $PETTRACER_TOKEN or prompt)")
	runCmd.Flags().IntSliceVar(&runDevices, "device", nil, "Device id to track (repeatable; overrides devices.ids)")
	runCmd.Flags().StringVar(&runCaptureDir, "capture-dir", "", "Directory for JSONL envelope captures (overrides channel.capture_dir)")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Query API listen address (overrides api.listen)")
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "Disable the query API")
	runCmd.Flags().BoolVar(&runAdvertise, "advertise", false, "Advertise the query API over mDNS")
	runCmd.Flags().StringVar(&runMQTTBroker, "mqtt-broker", "", "MQTT broker URL (overrides mqtt.broker)")
	runCmd.Flags().BoolVar(&runDebugAPI, "debug-api", false, "Run the API router in debug mode")
	runCmd.Flags().BoolVar(&runDashboard, "dashboard", false, "Show the live dashboard in this terminal (send logs to logging.file)")
}

// applyRunFlags folds command-line overrides into the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("device") {
		c.Devices.IDs = runDevices
	}
	if runCaptureDir != "" {
		c.Channel.CaptureDir = runCaptureDir
	}
	if runListen != "" {
		c.API.Listen = runListen
	}
	if runNoAPI {
		c.API.Enabled = false
	}
	if runAdvertise {
		c.API.Advertise = true
	}
	if runMQTTBroker != "" {
		c.MQTT.Broker = runMQTTBroker
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Devices.IDs) == 0 {
		logging.Warn("No devices configured; connecting without tracked devices")
	}

	token, err := resolveToken(runToken)
	if err != nil {
		return err
	}

	if cfg.Channel.CaptureDir != "" {
		if err := os.MkdirAll(cfg.Channel.CaptureDir, 0755); err != nil {
			return fmt.Errorf("cannot create capture directory: %w", err)
		}
	}

	chCfg := cfg.ChannelSettings()
	chCfg.Dialer = &session.WebSocketDialer{
		Header: http.Header{"User-Agent": []string{version.UserAgent()}},
	}
	recorder := channel.NewRecorder(cfg.Channel.CaptureDir)
	chCfg.Recorder = recorder
	defer recorder.Close()

	client := tracker.New(tracker.Options{
		Channel:      chCfg,
		HistoryLimit: cfg.Channel.HistoryLimit,
	})

	if !runDashboard {
		printer := ui.NewPrinter(os.Stderr)
		printer.PrintHeader("Live channel", "pettracer-live run",
			ui.Detail{Key: "Endpoint", Value: chCfg.Endpoint.Scheme + "://" + chCfg.Endpoint.Host},
			ui.Detail{Key: "Devices", Value: joinIDs(cfg.Devices.IDs)},
			ui.Detail{Key: "API", Value: apiSummary(cfg)},
			ui.Detail{Key: "MQTT", Value: orNone(cfg.MQTT.Broker)},
			ui.Detail{Key: "Capture", Value: orNone(cfg.Channel.CaptureDir)},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(context.Background(), token, cfg.Devices.IDs); err != nil {
		return fmt.Errorf("failed to start live channel: %w", err)
	}
	defer client.Stop()

	var advertiser *discovery.Advertiser
	if cfg.API.Enabled {
		srv, err := api.Listen(cfg.API.Listen, client, cfg.APIOptions(runDebugAPI))
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.API.Listen, err)
		}
		go func() {
			if err := srv.Serve(); err != nil {
				logging.Error("API server failed", zap.Error(err))
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn("API shutdown incomplete", zap.Error(err))
			}
		}()

		if cfg.API.Advertise {
			advertiser, err = discovery.Advertise(instanceName(), srv.Port(), version.Version, client.DeviceIDs())
			if err != nil {
				logging.Warn("mDNS advertisement failed", zap.Error(err))
			} else {
				defer advertiser.Shutdown()
			}
		}
	}

	if cfg.MQTT.Broker != "" {
		pub, err := publish.NewPublisher(cfg.PublishSettings(os.Getenv(mqttPasswordEnvVar)))
		if err != nil {
			return err
		}
		if err := pub.Connect(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		detach := pub.Attach(client)
		defer pub.Close()
		defer detach()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reloadDevices(client, advertiser)
			}
		}
	}()

	if runDashboard {
		return ui.RunDashboard(ctx, ui.LocalSource{Backend: client}, time.Second)
	}

	<-ctx.Done()
	logging.Info("Shutdown signal received, disconnecting...")
	return nil
}

// reloadDevices applies devices.ids from the config file on SIGHUP.
func reloadDevices(client *tracker.Client, advertiser *discovery.Advertiser) {
	path, err := resolveConfigPath()
	if err != nil {
		logging.Error("Cannot resolve config path", zap.Error(err))
		return
	}
	fresh, err := config.LoadFile(path)
	if err != nil {
		logging.Error("Config reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := client.UpdateDeviceIDs(fresh.Devices.IDs); err != nil {
		logging.Error("Device update failed", zap.Error(err))
		return
	}
	if advertiser != nil {
		advertiser.UpdateDevices(client.DeviceIDs())
	}
	logging.Info("Tracked devices reloaded", zap.Ints("device_ids", client.DeviceIDs()))
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return "pettracer-live on " + host
}

func apiSummary(c *config.Config) string {
	if !c.API.Enabled {
		return "disabled"
	}
	if c.API.Advertise {
		return c.API.Listen + " (mDNS)"
	}
	return c.API.Listen
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
