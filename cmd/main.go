// File: main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"speedtest-mqtt/pkg/config"
	"speedtest-mqtt/pkg/iperf"
	"speedtest-mqtt/pkg/latency"
	"speedtest-mqtt/pkg/measurement"
	"speedtest-mqtt/pkg/metrics"
	"speedtest-mqtt/pkg/publisher"
	"speedtest-mqtt/pkg/selector"
)

var (
	debugFlag   bool
	logFile     string
	metricsAddr string
	onceFlag    bool
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "speedtest-mqtt [config]",
	Short: "Measure throughput and latency with iperf3 and publish the results over MQTT",
	Long: `Periodically measures download and upload throughput against a pool of iperf3
servers, probes latency to one of them and publishes the results as retained
MQTT messages under <topic>/download, <topic>/upload and <topic>/ping.

[config] is the path to the YAML config file (default /config.yml). When the
file is missing built-in defaults are used.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		var out io.Writer = os.Stderr
		if logFile != "" {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    100, // MB
				MaxBackups: 7,
				MaxAge:     30, // days
				Compress:   true,
			})
		}

		logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultPath
		if len(args) > 0 {
			configPath = args[0]
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Defaulted {
		logger.Warn("Config not found, using default values", "path", path, "error", cfg.LoadError)
	}

	logger.Info("Configuration loaded",
		"interval", cfg.Interval,
		"servers", len(cfg.Servers),
		"latencyMethod", cfg.Latency.Method)
	logger.Info("Using MQTT server",
		"host", cfg.MQTT.Host,
		"port", cfg.MQTT.Port,
		"topic", cfg.MQTT.Topic)
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	prober, err := latency.New(cfg.Latency, logger)
	if err != nil {
		return fmt.Errorf("error creating latency prober: %w", err)
	}

	collector := metrics.NewCollector()
	if metricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, metricsAddr, logger); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	iperfClient := iperf.NewClient(cfg.Iperf.Binary, cfg.Iperf.Timeout, logger)
	pub := publisher.NewPublisher(cfg.MQTT, publisher.NewMQTTClient(), logger)

	svc := measurement.NewMeasurementService(cfg.Servers, cfg.Interval, measurement.Deps{
		Runner:    measurement.NewRunner(iperfClient, cfg.Iperf.Duration),
		Selector:  selector.New(nil),
		Prober:    prober,
		Publisher: pub,
		Reporter:  measurement.Reporters{measurement.LogReporter{Logger: logger}, collector},
		Recorder:  collector,
	}, logger)

	if onceFlag {
		err := svc.RunOnce(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return svc.RunMeasurements(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated automatically")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9100")
	rootCmd.Flags().BoolVar(&onceFlag, "once", false, "Run a single cycle, publish and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("Exiting", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
