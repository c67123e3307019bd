package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/voluzi/traceclaw/internal/config"
	"github.com/voluzi/traceclaw/internal/environ"
	"github.com/voluzi/traceclaw/internal/observability"
	"github.com/voluzi/traceclaw/internal/server"
	"github.com/voluzi/traceclaw/pkg/collector"
	"github.com/voluzi/traceclaw/pkg/eventlog"
	"github.com/voluzi/traceclaw/pkg/procident"
	"github.com/voluzi/traceclaw/pkg/sink"
	"github.com/voluzi/traceclaw/pkg/tracer"
)

var listenAddr string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Samples resources until interrupted",
	Long: `Collect samples host and process resources at the configured interval and
hands every batch to the enabled sinks. When openclaw.event_log is set the
OpenClaw log is followed as well and its events are stored next to the
samples.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runCollect(ctx, cfg)
	},
}

func init() {
	collectCmd.Flags().StringVar(&listenAddr, "listen",
		environ.GetString("TRACE_CLAW_LISTEN", ""),
		"Address serving /health, /status and /metrics. Disabled when empty.",
	)
	rootCmd.AddCommand(collectCmd)
}

func runCollect(ctx context.Context, cfg *config.Config) error {
	clk := clock.RealClock{}
	metrics := observability.New()
	opts := []collector.Option{
		collector.WithClock(clk),
		collector.WithMetrics(metrics),
		collector.WithReadTimeout(cfg.ReadTimeout()),
	}

	collectors, proc := buildCollectors(cfg, opts)
	sinks, err := buildSinks(ctx, cfg, clk)
	if err != nil {
		return err
	}

	manager := collector.NewManager(cfg.Interval(), collectors, sinks, opts...)
	if len(collectors) > 0 {
		if err := manager.Start(ctx); err != nil {
			return errors.Combine(err, manager.Close())
		}
	} else {
		log.Warn("no collector enabled, only following the openclaw event log")
	}

	if listenAddr != "" {
		srvOpts := []server.Option{server.WithMetrics(metrics.Handler())}
		if proc != nil {
			srvOpts = append(srvOpts, server.WithIdentities(cfg.Collector.ProcessName, proc))
		}
		srv := server.New(manager, srvOpts...)
		go func() {
			if err := srv.ListenAndServe(ctx, listenAddr); err != nil {
				log.WithError(err).Error("status server failed")
			}
		}()
	}

	var follower *eventFollower
	if cfg.OpenClaw.EventLog != "" {
		if follower, err = followEventLog(ctx, cfg, clk); err != nil {
			log.WithError(err).WithField("path", cfg.OpenClaw.EventLog).Error("not following openclaw event log")
		}
	}

	<-ctx.Done()
	log.Info("shutting down")

	manager.Wait()
	var errs []error
	if follower != nil {
		errs = append(errs, follower.stop())
	}
	errs = append(errs, manager.Close())
	return errors.Combine(errs...)
}

func buildCollectors(cfg *config.Config, opts []collector.Option) ([]collector.Collector, *collector.Process) {
	if !cfg.Collector.Enabled {
		return nil, nil
	}

	var collectors []collector.Collector
	host := collector.Host{}
	if cfg.Collector.CPU {
		collectors = append(collectors, collector.NewCPU(host, opts...))
	}
	if cfg.Collector.Memory {
		collectors = append(collectors, collector.NewMemory(host, opts...))
	}
	if cfg.Collector.Network {
		collectors = append(collectors, collector.NewNetwork(host, cfg.Collector.NetworkInterface, opts...))
	}

	var proc *collector.Process
	if cfg.Collector.ProcessFilterEnabled {
		tracker := procident.NewTracker(cfg.Collector.ProcessName, procident.PsLister{},
			procident.WithGraceTicks(cfg.Collector.GraceTicks),
			procident.WithRecencyWindow(cfg.RecencyWindow()),
		)
		proc = collector.NewProcess(tracker, collector.NewPsReader(), opts...)
		collectors = append(collectors, proc)
	}
	return collectors, proc
}

func buildSinks(ctx context.Context, cfg *config.Config, clk clock.PassiveClock) ([]collector.Sink, error) {
	var sinks []collector.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if cfg.LocalExporter.Enabled {
		local, err := sink.NewLocal(cfg.LocalExporter.OutputDir, clk)
		if err != nil {
			return nil, errors.Wrap(err, "creating local sink")
		}
		sinks = append(sinks, local)
	}

	if cfg.Mode == config.ModeOnline {
		otelSink, err := sink.NewOTel(ctx, sink.OTelConfig{
			Endpoint:       cfg.Otel.Endpoint,
			ServiceName:    cfg.Otel.ServiceName,
			Headers:        cfg.Otel.Headers,
			ExportInterval: time.Duration(cfg.Otel.ExportIntervalMs) * time.Millisecond,
		})
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "creating otel sink")
		}
		sinks = append(sinks, otelSink)
	}

	if cfg.Prometheus.TextfilePath != "" {
		prom, err := sink.NewPromFile(cfg.Prometheus.TextfilePath, sink.DefaultStaleAfter)
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "creating prometheus textfile sink")
		}
		sinks = append(sinks, prom)
	}

	if len(sinks) == 0 {
		log.Warn("no sink enabled, samples will be discarded")
	}
	return sinks, nil
}

type eventFollower struct {
	tracer *tracer.EventTracer
	logger *eventlog.Logger
	done   chan int
}

func followEventLog(ctx context.Context, cfg *config.Config, clk clock.PassiveClock) (*eventFollower, error) {
	logger, err := eventlog.New(cfg.LocalExporter.OutputDir, clk)
	if err != nil {
		return nil, err
	}
	tr, err := tracer.NewEventTracer(cfg.OpenClaw.EventLog, cfg.OpenClaw.CreateFifo, true)
	if err != nil {
		return nil, errors.Combine(err, logger.Close())
	}

	f := &eventFollower{tracer: tr, logger: logger, done: make(chan int, 1)}
	go tr.Start()
	go func() {
		f.done <- tracer.Forward(ctx, tr, logger)
	}()

	log.WithFields(log.Fields{
		"path": cfg.OpenClaw.EventLog,
		"fifo": cfg.OpenClaw.CreateFifo,
	}).Info("following openclaw event log")
	return f, nil
}

func (f *eventFollower) stop() error {
	err := f.tracer.Stop()
	forwarded := <-f.done
	// Forward may have returned before Start noticed the stop.
	for range f.tracer.Traces {
	}
	log.WithField("events", forwarded).Info("stopped following openclaw event log")
	return errors.Combine(err, f.logger.Close())
}

var _ server.IdentitySource = (*collector.Process)(nil)
