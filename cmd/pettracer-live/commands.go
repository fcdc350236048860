package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/pettracer/internal/api"
	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/config"
	"github.com/muurk/pettracer/internal/discovery"
	"github.com/muurk/pettracer/internal/session"
	"github.com/muurk/pettracer/internal/ui"
)

// watch

var (
	watchURL      string
	watchInterval time.Duration
	watchTimeout  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live dashboard of a running instance",
	Long: `Open a terminal dashboard for a running 'pettracer-live run'.

Without --url the first instance found over mDNS is used.`,
	Example: `  pettracer-live watch
  pettracer-live watch --url http://127.0.0.1:8780`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		baseURL := watchURL
		if baseURL == "" {
			instances, err := discovery.Browse(ctx, watchTimeout)
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}
			if len(instances) == 0 {
				printer := ui.NewPrinter(os.Stderr)
				printer.PrintError("No instance found", errors.New("no pettracer-live instance answered on mDNS"),
					"Start one with 'pettracer-live run --advertise'",
					"Or pass its address with --url")
				return errors.New("no instance found")
			}
			baseURL = instances[0].BaseURL()
		}

		source := ui.RemoteSource{Client: api.NewClient(baseURL)}
		return ui.RunDashboard(ctx, source, watchInterval)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "Base URL of the query API (default: discover over mDNS)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Refresh interval")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", discovery.DefaultScanTimeout, "mDNS discovery timeout")
}

// decode

var decodeQuiet bool

var decodeCmd = &cobra.Command{
	Use:   "decode <capture.jsonl>",
	Short: "Decode a recorded capture file",
	Long: `Replay a JSONL capture written by 'run --capture-dir' through the
envelope and frame decoders and print every frame.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		records, err := channel.ReadCapture(f)
		if err != nil {
			return fmt.Errorf("failed to read capture: %w", err)
		}
		replayed := channel.Replay(records)

		out := cmd.OutOrStdout()
		if !decodeQuiet {
			for _, r := range replayed {
				arrow := "<-"
				if r.Record.Direction == string(session.Outbound) {
					arrow = "->"
				}
				prefix := fmt.Sprintf("%s %s %s", r.Record.Timestamp.Format(time.RFC3339Nano), r.Record.AttemptID, arrow)
				if r.Envelope != nil && len(r.Frames) == 0 && len(r.Errors) == 0 {
					fmt.Fprintf(out, "%s %s\n", prefix, r.Envelope.Type)
				}
				for _, frame := range r.Frames {
					fmt.Fprintf(out, "%s %s\n", prefix, frame)
				}
				for _, e := range r.Errors {
					fmt.Fprintf(out, "%s error: %v\n", prefix, e)
				}
			}
		}

		s := channel.Summarize(replayed)
		details := []ui.Detail{
			{Key: "Records", Value: strconv.Itoa(s.Records)},
			{Key: "Inbound", Value: strconv.Itoa(s.Inbound)},
			{Key: "Outbound", Value: strconv.Itoa(s.Outbound)},
		}
		commands := make([]string, 0, len(s.Frames))
		for c := range s.Frames {
			commands = append(commands, c)
		}
		sort.Strings(commands)
		for _, c := range commands {
			details = append(details, ui.Detail{Key: c, Value: strconv.Itoa(s.Frames[c])})
		}
		details = append(details, ui.Detail{Key: "Errors", Value: strconv.Itoa(s.Errors)})

		printer := ui.NewPrinter(out)
		printer.PrintSuccess("Capture decoded", details...)
		return nil
	},
}

func init() {
	decodeCmd.Flags().BoolVarP(&decodeQuiet, "quiet", "q", false, "Only print the summary")
}

// discover

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find running instances on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		printer := ui.NewPrinter(cmd.OutOrStdout())

		instances, err := discovery.Browse(ctx, discoverTimeout)
		if err != nil {
			printer.PrintError("Discovery failed", err, "Check that multicast is allowed on this network")
			return err
		}
		if len(instances) == 0 {
			printer.Println(ui.MutedStyle.Render("No instances found."))
			return nil
		}

		for _, inst := range instances {
			printer.PrintSuccess(inst.Name,
				ui.Detail{Key: "URL", Value: inst.BaseURL()},
				ui.Detail{Key: "Version", Value: orNone(inst.Version())},
				ui.Detail{Key: "Devices", Value: joinIDs(inst.DeviceIDs())},
			)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for answers")
}

// config

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		printer := ui.NewPrinter(cmd.OutOrStdout())
		if err := config.CreateDefaultConfig(path, configForce); err != nil {
			hints := []string{}
			if strings.Contains(err.Error(), "exists") {
				hints = append(hints, "Use --force to overwrite it")
			}
			printer.PrintError("Config not written", err, hints...)
			return err
		}
		printer.PrintSuccess("Config written", ui.Detail{Key: "Path", Value: path})
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
