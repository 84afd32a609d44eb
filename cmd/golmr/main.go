// Command golmr runs continuous level-meter measurements with the custom
// multi-channel readout board or the single-channel smartec UTI evaluation
// board. Press Ctrl+C to stop acquisition.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xenoscope/golmr/pkg/acquire"
	"github.com/xenoscope/golmr/pkg/config"
	"github.com/xenoscope/golmr/pkg/lmr"
	"github.com/xenoscope/golmr/pkg/metrics"
	"github.com/xenoscope/golmr/pkg/sink"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	port       string
	samples    int
	channels   string
	save       bool
	verbose    bool
	closePort  bool
	mock       bool
	sqlite     string
	metrics    string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "golmr",
		Short:        "Continuous capacitive level-meter readout over serial",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyOverrides(cfg, &opts, cmd)
			return run(cmd.Context(), cfg, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "config.yaml", "configuration file path")
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "serial port override (e.g. /dev/ttyUSB0)")
	cmd.Flags().IntVarP(&opts.samples, "nmeasurements", "n", 0, "measurements taken and averaged per cycle and level meter")
	cmd.Flags().StringVar(&opts.channels, "channels", "a", "channels to read: a = all, s = SLMs, l = LLMs, or a list like \"1,3,5\"")
	cmd.Flags().BoolVarP(&opts.save, "save", "s", true, "save measurement values to csv")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", true, "print measurement values to terminal")
	cmd.Flags().BoolVarP(&opts.closePort, "close", "c", false, "close port after measurement")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "use mocked board instead of serial port")
	cmd.Flags().StringVar(&opts.sqlite, "sqlite", "", "also store readings in this SQLite database")
	cmd.Flags().StringVar(&opts.metrics, "metrics-addr", "", "expose Prometheus metrics on this listen address")

	cmd.AddCommand(newPortsCmd())
	return cmd
}

// applyOverrides folds explicitly set flags into the loaded configuration.
func applyOverrides(cfg *config.Config, opts *options, cmd *cobra.Command) {
	if opts.port != "" {
		cfg.Serial.Port = opts.port
	}
	if opts.samples > 0 {
		cfg.Measurement.SamplesPerChannel = opts.samples
	}
	if cmd.Flags().Changed("save") {
		cfg.Output.SaveCSV = opts.save
	} else {
		opts.save = cfg.Output.SaveCSV
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Output.Verbose = opts.verbose
	} else {
		opts.verbose = cfg.Output.Verbose
	}
	if opts.closePort {
		cfg.Board.CloseAfterRun = true
	}
	if opts.sqlite != "" {
		cfg.Output.SQLitePath = opts.sqlite
	}
	if opts.metrics != "" {
		cfg.Output.MetricsAddr = opts.metrics
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options) error {
	var transport lmr.Transport
	if opts.mock {
		transport = lmr.NewMock(&cfg.Mock)
	} else {
		transport = lmr.NewSerial(cfg.Serial)
	}

	log.Printf("Opening port %s", cfg.Serial.Port)
	if err := transport.Open(); err != nil {
		return err
	}

	log.Printf("Checking config level meter readout")
	if err := lmr.Configure(transport, cfg.Board, cfg.Serial.CommandDelay); err != nil {
		transport.Close()
		return err
	}

	var codec lmr.Codec
	var channels []acquire.Channel
	switch cfg.Board.Variant {
	case "smartec":
		codec = &lmr.SmartecCodec{}
		channels = acquire.ChannelsFromConfig(cfg.Channels[:1])
	default:
		codec = lmr.NewReadoutCodec()
		all := acquire.ChannelsFromConfig(cfg.Channels)
		var err error
		channels, err = acquire.SelectChannels(all, opts.channels)
		if err != nil {
			transport.Close()
			return err
		}
	}

	sinks, cleanup, err := buildSinks(cfg)
	if err != nil {
		transport.Close()
		return err
	}
	defer cleanup()

	sampler := lmr.NewSampler(transport, codec, cfg.Measurement.Retries, cfg.Serial.CommandDelay)
	sched := acquire.New(sampler, channels, cfg.Measurement.SamplesPerChannel, cfg.Measurement.CyclePeriod, sinks...)

	if cfg.Output.MetricsAddr != "" {
		sched.SetObserver(metrics.New(nil))
		go serveMetrics(cfg.Output.MetricsAddr)
	}
	if cfg.Board.CloseAfterRun {
		sched.CloseOnExit(transport)
	}

	log.Printf("Starting measurement")
	if err := sched.Run(ctx); err != nil {
		return err
	}

	fmt.Println("\nDone.")
	if cfg.Board.CloseAfterRun {
		log.Printf("Closed port %s", cfg.Serial.Port)
	}
	return nil
}

// buildSinks assembles the configured output sinks and a cleanup closing
// the file-backed ones.
func buildSinks(cfg *config.Config) ([]acquire.Sink, func(), error) {
	var sinks []acquire.Sink
	var closers []func() error

	if cfg.Output.Verbose {
		console := sink.NewConsole(os.Stdout)
		console.Header()
		sinks = append(sinks, console)
	}

	if cfg.Output.SaveCSV {
		csvSink, err := sink.NewCSV(cfg.Output.Dir, cfg.Output.RotateCycles)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, csvSink)
		closers = append(closers, csvSink.Close)
	}

	if cfg.Output.SQLitePath != "" {
		store, err := sink.NewSQLite(cfg.Output.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("Error closing sink: %v", err)
			}
		}
	}
	return sinks, cleanup, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics listener failed: %v", err)
	}
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports present on this host",
		RunE: func(_ *cobra.Command, _ []string) error {
			ports, err := lmr.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}
