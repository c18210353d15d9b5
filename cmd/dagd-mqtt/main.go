package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dagd-mqtt/config"
	"dagd-mqtt/internal/algo"
	"dagd-mqtt/internal/broker"
	"dagd-mqtt/internal/broker/mqtt"
	"dagd-mqtt/internal/broker/nats"
	"dagd-mqtt/internal/event"
	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/metrics"
	"dagd-mqtt/internal/payload"
	"dagd-mqtt/internal/processor"
	"dagd-mqtt/internal/session"
	"dagd-mqtt/internal/stats"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config file")

	// Optional override flags
	brokerOverride := flag.String("broker", "", "override broker address, host[:port] or URL (empty = use config)")
	clientIDOverride := flag.String("client-id", "", "override client id (empty = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")
	statusIntervalOverride := flag.Duration("status-interval", 0, "override status publish interval (0 = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*brokerOverride,
		*clientIDOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
		*statusIntervalOverride,
	)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	var metricsService *metrics.Metrics
	var metricsServer *http.Server
	reg := prometheus.NewRegistry()

	if cfg.Metrics.Enabled {
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}
	}

	topics, err := payload.NewTopicMap(cfg.Topics)
	if err != nil {
		logger.Fatal("invalid topics", "error", err)
	}

	statsCollector := stats.NewStatsCollector()
	proc, err := processor.NewProcessor(processor.ProcessorConfig{
		Topics:   topics,
		Resolver: algo.Table{},
	}, logger, metricsService, statsCollector)
	if err != nil {
		logger.Fatal("failed to create processor", "error", err)
	}

	if cfg.Metrics.Enabled {
		updateInterval, _ := time.ParseDuration(cfg.Metrics.UpdateInterval)
		metricsCollector := metrics.NewMetricsCollector(metricsService, updateInterval, proc.SessionSource())
		metricsCollector.Start()
		defer metricsCollector.Stop()

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribeNotifications(proc, logger, cancel)

	b, err := newBroker(cfg, logger, proc, metricsService)
	if err != nil {
		logger.Fatal("failed to create broker", "error", err)
	}

	if err := b.Start(ctx); err != nil {
		logger.Fatal("failed to start broker", "error", err)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- b.Run(ctx)
	}()

	if cfg.Status.Enabled {
		interval, _ := time.ParseDuration(cfg.Status.Interval)
		go publishStatus(ctx, b, proc, interval, logger)
	}

	logger.Info("dagd-mqtt started",
		"transport", cfg.MQTT.Transport,
		"topics", topics.InboundNames(),
		"metricsEnabled", cfg.Metrics.Enabled,
		"statusEnabled", cfg.Status.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	shutdown := func() {
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", "error", err)
			}
		}

		cancel()
		b.Close()
	}

	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, syncing logs")
				logger.Sync()
			case syscall.SIGINT, syscall.SIGTERM:
				shutdown()
				return
			}
		case err := <-runErr:
			if err != nil {
				b.Close()
				logger.Fatal("transport failed", "error", err)
			}
			// Run only returns nil once ctx is cancelled by a shutdown request
			shutdown()
			return
		}
	}
}

func newBroker(cfg *config.Config, log *logger.Logger, proc *processor.Processor, m *metrics.Metrics) (broker.Broker, error) {
	if cfg.MQTT.Transport == "nats" {
		return nats.NewBroker(cfg, log, proc, m)
	}
	return mqtt.NewBroker(cfg, log, proc, m)
}

// subscribeNotifications logs every state change. A pending shutdown stops
// the daemon through stop.
func subscribeNotifications(proc *processor.Processor, log *logger.Logger, stop context.CancelFunc) {
	tracker := proc.Tracker()

	proc.SubscribeFunc(event.EpochChanged, func(ctx any) {
		algorithm, epoch := ctx.(*session.Tracker).Epoch()
		log.Info("switching epoch",
			"epoch", epoch,
			"algorithm", algorithm.String())
	}, tracker)

	proc.SubscribeFunc(event.MinedStateChanged, func(ctx any) {
		if ctx.(*session.Tracker).Hold() {
			log.Info("holding for epoch upload")
			return
		}
		log.Info("epoch upload finished")
	}, tracker)

	proc.SubscribeFunc(event.ShutdownRequested, func(ctx any) {
		if !ctx.(*session.Tracker).ShutdownPending() {
			log.Debug("shutdown request cleared")
			return
		}
		log.Warn("shutdown requested over the bus")
		stop()
	}, tracker)
}

// publishStatus sends the processor status every interval. The first publish
// is forced so a fresh retained status replaces the previous run's.
func publishStatus(ctx context.Context, b broker.Broker, proc *processor.Processor, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	force := true
	for {
		data, err := proc.Status()
		if err != nil {
			log.Error("failed to encode status", "error", err)
		} else {
			b.PublishStatus(string(data), force)
			force = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
