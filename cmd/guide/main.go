// Package main provides the guide CLI: the screen-guidance pipeline with its
// dashboard, the stream receiver, and small inspection commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/screen-guide/internal/config"
	"github.com/teslashibe/screen-guide/internal/httpc"
	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/frame"
	"github.com/teslashibe/screen-guide/pkg/web"
)

var (
	configPath    string
	logLevel      string
	debugFlag     bool
	debugBehavior bool

	runNoEdge   bool
	runStream   bool
	runAddr     string
	runCapturer string

	sinkAddr string

	statusURL string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "guide",
		Short:        "Real-time screen guidance",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $GUIDE_CONFIG or ~/.config/screen-guide/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "verbose per-frame logging")
	rootCmd.PersistentFlags().BoolVar(&debugBehavior, "debug-behavior", false, "verbose per-event behavior logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the guidance pipeline and dashboard",
		RunE:  runGuideCmd,
	}
	runCmd.Flags().BoolVar(&runNoEdge, "no-edge", false, "skip on-device models")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "stream frames to stream.url")
	runCmd.Flags().StringVar(&runAddr, "addr", "", "dashboard listen address")
	runCmd.Flags().StringVar(&runCapturer, "capture", "", "capture source: synthetic or device")

	sinkCmd := &cobra.Command{
		Use:   "sink",
		Short: "Receive a frame stream from guide run --stream",
		RunE:  runSinkCmd,
	}
	sinkCmd.Flags().StringVar(&sinkAddr, "addr", "", "listen address")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running dashboard",
		RunE:  runStatusCmd,
	}
	statusCmd.Flags().StringVar(&statusURL, "url", "http://localhost:8080", "dashboard base URL")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List capture quality presets",
		RunE:  runPresetsCmd,
	}

	rootCmd.AddCommand(runCmd, sinkCmd, statusCmd, presetsCmd)
	return rootCmd
}

// loadConfig reads the config file and applies global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.Log.Debug = cfg.Log.Debug || debugFlag
	cfg.Log.DebugBehavior = cfg.Log.DebugBehavior || debugBehavior
	if cfg.Log.Debug || cfg.Log.DebugBehavior {
		cfg.Log.Level = "debug"
	}

	log.InitWith(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	debug.Enabled = cfg.Log.Debug
	debug.Behavior = cfg.Log.DebugBehavior
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runGuideCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runNoEdge {
		cfg.Pipeline.EnableEdge = false
	}
	if runStream {
		cfg.Pipeline.EnableStream = true
	}
	if runAddr != "" {
		cfg.Web.Addr = runAddr
	}
	if runCapturer != "" {
		cfg.Capture.Source = runCapturer
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func runSinkCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sinkAddr != "" {
		cfg.Receiver.Addr = sinkAddr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return runReceiver(ctx, cfg.Receiver)
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	var st web.StatusResponse
	if err := httpc.GetJSON(ctx, statusURL+"/api/status", &st); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "session\t%s\n", st.SessionID)
	fmt.Fprintf(w, "running\t%t\n", st.Running)
	fmt.Fprintf(w, "edge\t%t\n", st.EdgeProcessing)
	fmt.Fprintf(w, "stream\t%t\n", st.StreamConnected)
	fmt.Fprintf(w, "fps\t%.1f\n", st.FPS)
	fmt.Fprintf(w, "latency\t%s (sla breached: %t)\n", st.AverageLatency, st.SLABreached)
	fmt.Fprintf(w, "ticks\t%d (skipped %d, inference errors %d)\n", st.Ticks, st.SkippedTicks, st.InferenceErrors)
	fmt.Fprintf(w, "dashboards\t%d\n", st.Dashboards)
	fmt.Fprintf(w, "inputs\t%d from %d clients\n", st.InputsReceived, st.InputClients)
	return w.Flush()
}

func runPresetsCmd(cmd *cobra.Command, _ []string) error {
	presets := frame.Presets()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUALITY\tFPS\tBITRATE")
	for _, q := range frame.QualityNames() {
		p := presets[q]
		fmt.Fprintf(w, "%s\t%d\t%d kbps\n", q, p.FPS, p.BitrateKbps)
	}
	return w.Flush()
}
