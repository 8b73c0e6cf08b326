// Command rslidar decodes RoboSense RS16 / RS128 MSOP and DIFOP streams,
// live from UDP or replayed from a PCAP capture, and reports range
// statistics and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/rslidar/internal/config"
	"github.com/banshee-data/rslidar/internal/lidar"
	"github.com/banshee-data/rslidar/internal/lidar/l1packets"
	"github.com/banshee-data/rslidar/internal/lidar/monitor"
	"github.com/banshee-data/rslidar/internal/lidar/parse"
	"github.com/banshee-data/rslidar/internal/monitoring"
	"github.com/banshee-data/rslidar/internal/version"
)

// options is the resolved command configuration: the JSON file, when
// given, provides the base and explicitly set flags override it.
type options struct {
	cfg *config.DecoderConfig

	pcapFile    string
	summaryDir  string
	histBins    int
	trace       bool
	logInterval time.Duration
	showVersion bool
}

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("rslidar", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to a JSON decoder config file")
	model := fs.String("model", config.DefaultModel, "Sensor model: RS16 or RS128")
	msop := fs.String("msop", fmt.Sprintf(":%d", parse.DEFAULT_MSOP_PORT), "MSOP listen address")
	difop := fs.String("difop", fmt.Sprintf(":%d", parse.DEFAULT_DIFOP_PORT), "DIFOP listen address (empty to disable)")
	calib := fs.String("calib", "", "Directory holding angle.csv, ChannelNum.csv, ZeroAngleAbsdist.csv, limit.csv")
	pcapFile := fs.String("pcap", "", "Replay this capture instead of listening (requires -tags=pcap)")
	speed := fs.Float64("speed", 0, "PCAP replay speed factor (0 = as fast as possible)")
	metrics := fs.String("metrics", "", "Prometheus listen address, e.g. :9100 (empty to disable)")
	summaryDir := fs.String("summary-png", "", "Write range histogram PNGs to this directory on exit")
	bins := fs.Int("bins", 100, "Range histogram bins")
	logInterval := fs.Duration("log-interval", 0, "Statistics logging interval (default from config, else 1m)")
	trace := fs.Bool("trace", false, "Log per-packet decoder telemetry")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		return &options{showVersion: true}, nil
	}

	cfg := &config.DecoderConfig{}
	if *configPath != "" {
		loaded, err := config.LoadDecoderConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	override := func(name string, dst **string, v string) {
		if set[name] || *dst == nil {
			*dst = &v
		}
	}
	override("model", &cfg.Model, *model)
	override("msop", &cfg.MsopAddress, *msop)
	override("difop", &cfg.DifopAddress, *difop)
	override("calib", &cfg.CalibrationDir, *calib)
	override("metrics", &cfg.MetricsAddress, *metrics)
	if set["speed"] || cfg.ReplaySpeed == nil {
		cfg.ReplaySpeed = speed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	interval := cfg.GetLogInterval()
	if set["log-interval"] {
		if *logInterval <= 0 {
			return nil, fmt.Errorf("-log-interval must be positive, got %v", *logInterval)
		}
		interval = *logInterval
	}

	return &options{
		cfg:         cfg,
		pcapFile:    *pcapFile,
		summaryDir:  *summaryDir,
		histBins:    *bins,
		trace:       *trace,
		logInterval: interval,
	}, nil
}

// ingestStats feeds revolution boundaries to both the periodic log and the
// Prometheus counters.
type ingestStats struct {
	*lidar.PacketStats
	metrics *monitoring.DecoderMetrics
}

func (s ingestStats) AddRevolution() {
	s.PacketStats.AddRevolution()
	s.metrics.AddRevolution()
}

func run(ctx context.Context, opts *options) error {
	logf := monitoring.Prefixed("rslidar")

	var traceW io.Writer
	if opts.trace {
		traceW = os.Stderr
	}
	parse.SetLogWriters(os.Stderr, os.Stderr, traceW)

	cfg := opts.cfg
	f, err := cfg.Family()
	if err != nil {
		return err
	}
	dec, err := l1packets.NewSensor(cfg.GetModel(), cfg.ParseConfig(f), cfg.GetCalibrationDir())
	if err != nil {
		return fmt.Errorf("building %s decoder: %w", f.Name, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewDecoderMetrics(reg, f.Name)
	dec.SetObserver(metrics)

	summary := monitor.NewRangeSummary(f.Name, f.Lasers, 0)

	if addr := cfg.GetMetricsAddress(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/status", monitor.StatusHandler(summary))
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logf("serving /metrics and /status on %s", addr)
	}

	stats := ingestStats{PacketStats: lidar.NewPacketStats(), metrics: metrics}
	logf("%s: %s decoder run %s", version.String(), f.Name, summary.RunID())

	if opts.pcapFile != "" {
		d := l1packets.NewDispatcher(dec, stats, summary)
		sum, err := l1packets.ReadPCAPFile(ctx, opts.pcapFile, l1packets.ReplayOptions{Speed: cfg.GetReplaySpeed()}, d)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logf("replayed %d packets (%d errors), capture span %v", sum.Packets, sum.Errors, sum.LastCapture.Sub(sum.FirstCapture))
		stats.LogStats(true)
	} else {
		listener := l1packets.NewUDPListener(l1packets.UDPListenerConfig{
			MsopAddress:  cfg.GetMsopAddress(),
			DifopAddress: cfg.GetDifopAddress(),
			RcvBuf:       cfg.GetRcvBuf(),
			LogInterval:  opts.logInterval,
			Stats:        stats,
			Decoder:      dec,
			Sink:         summary,
		})
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	return report(summary, opts, logf)
}

func report(summary *monitor.RangeSummary, opts *options, logf func(string, ...interface{})) error {
	snap := summary.Snapshot()
	logf("%s", snap)
	if opts.summaryDir == "" {
		return nil
	}
	paths, err := monitor.WritePlots(opts.summaryDir, summary, opts.histBins)
	if errors.Is(err, monitor.ErrNoSamples) {
		logf("no valid points, skipping plots")
		return nil
	}
	if err != nil {
		return err
	}
	for _, p := range paths {
		logf("wrote %s", p)
	}
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal(err)
	}
}
