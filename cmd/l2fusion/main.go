// Package main implements the L2 fusion coordinator entry point: the
// process that subscribes to the L1 sensor fleet, runs a pluggable
// fusion algorithm, and publishes control decisions back to the fleet.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/oraqon/dp-aero-L2/bus"
	"github.com/oraqon/dp-aero-L2/config"
	"github.com/oraqon/dp-aero-L2/errors"
	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/fusion/strategy"
	"github.com/oraqon/dp-aero-L2/health"
	"github.com/oraqon/dp-aero-L2/manager"
	"github.com/oraqon/dp-aero-L2/metric"
	"github.com/oraqon/dp-aero-L2/natsclient"
	"github.com/oraqon/dp-aero-L2/pkg/retry"

	// Register the built-in algorithms with fusion.DefaultRegistry.
	_ "github.com/oraqon/dp-aero-L2/fusion/tracking"
)

// Build information constants
const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "l2fusion"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("configuration is valid")
		fmt.Println(cfg.String())
		return nil
	}

	logger.Info("starting L2 fusion coordinator",
		"version", Version,
		"build_time", BuildTime,
		"nats_url", cfg.NATS.URL,
		"algorithm", cfg.Fusion.Algorithm)

	ctx := context.Background()

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	natsClient, err := connectNATS(ctx, cfg, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := natsClient.Close(ctx); err != nil {
			logger.Warn("nats close", "error", err)
		}
	}()

	metricsPort := cfg.Metrics.Port
	if cliCfg.MetricsPort > 0 {
		metricsPort = cliCfg.MetricsPort
	}
	var metricsServer *metric.Server
	if metricsPort > 0 {
		metricsServer = metric.NewServer(metricsPort, cfg.Metrics.Path, metricsRegistry, cfg.Metrics.Security)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server exited", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("metrics server stop", "error", err)
			}
		}()
		logger.Info("metrics endpoint enabled", "addr", metricsServer.Address())
	}

	configManager, err := config.NewManager(cfg, natsClient, logger)
	if err != nil {
		// Runtime config is best-effort; the file config still stands.
		logger.Warn("dynamic configuration unavailable", "error", err)
	} else {
		if err := configManager.Start(ctx); err != nil {
			logger.Warn("config watch failed to start", "error", err)
		}
		defer configManager.Stop(5 * time.Second)
		go logConfigUpdates(configManager, logger)
	}

	mgr, err := buildManager(cfg, natsClient, metricsRegistry, monitor, logger)
	if err != nil {
		return err
	}

	if err := mgr.Start(ctx); err != nil {
		return err
	}

	return waitForShutdown(mgr, cliCfg, logger)
}

// loadConfiguration merges defaults, the optional config file, env vars
// and CLI flags (flags win).
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.NATSURL != "" {
		cfg.NATS.URL = cliCfg.NATSURL
	}
	if cliCfg.Algorithm != "" {
		cfg.Fusion.Algorithm = cliCfg.Algorithm
	}
	if cliCfg.UpdateInterval > 0 {
		cfg.Fusion.UpdateInterval = cliCfg.UpdateInterval
	}
	if cliCfg.NodeTimeout > 0 {
		cfg.Fusion.NodeTimeout = cliCfg.NodeTimeout
	}
	if cliCfg.Workers > 0 {
		cfg.Fusion.WorkerThreads = cliCfg.Workers
	}
	if cliCfg.QueueSize > 0 {
		cfg.Fusion.MessageQueueSize = cliCfg.QueueSize
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// connectNATS dials the bus with bounded retry so a briefly absent
// server does not kill startup.
func connectNATS(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithPingInterval(cfg.NATS.PingInterval),
		natsclient.WithMetrics(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	err = retry.Do(ctx, retry.Quick(), func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "main", "connectNATS", "connect to "+cfg.NATS.URL)
	}
	logger.Info("connected to NATS", "url", cfg.NATS.URL)
	return client, nil
}

// buildManager wires the fusion manager, the selected algorithm and the
// default strategies.
func buildManager(
	cfg *config.Config,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*manager.Manager, error) {
	mgrCfg := manager.Config{
		L1ToL2Topic:             cfg.Topics.L1ToL2,
		L2ToL1Topic:             cfg.Topics.L2ToL1,
		HeartbeatTopic:          cfg.Topics.Heartbeat,
		NodeTimeout:             cfg.Fusion.NodeTimeout,
		HeartbeatInterval:       cfg.Fusion.HeartbeatInterval,
		AlgorithmUpdateInterval: cfg.Fusion.UpdateInterval,
		WorkerThreads:           cfg.Fusion.WorkerThreads,
		MessageQueueSize:        cfg.Fusion.MessageQueueSize,
		DedupeWindow:            cfg.Fusion.DedupeWindow,
		Debug:                   cfg.Logging.Level == "debug",
	}

	natsBus := bus.NewNATSBus(natsClient, logger)
	mgr, err := manager.New(mgrCfg, natsBus,
		manager.WithLogger(logger),
		manager.WithMetricsRegistry(metricsRegistry),
		manager.WithHealthMonitor(monitor),
	)
	if err != nil {
		return nil, err
	}

	alg, err := fusion.DefaultRegistry.Create(cfg.Fusion.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("unknown algorithm %q (available: %v): %w",
			cfg.Fusion.Algorithm, fusion.DefaultRegistry.Names(), err)
	}

	// Strategy-based algorithms get the default policy set; others run
	// as-is.
	type strategic interface {
		SetPrioritizer(strategy.TargetPrioritizer)
		SetAssigner(strategy.DeviceAssignmentStrategy)
	}
	if s, ok := alg.(strategic); ok {
		s.SetPrioritizer(strategy.NewThreatBasedPrioritizer())
		s.SetAssigner(strategy.NewCapabilityBasedAssignmentStrategy())
	}

	if err := mgr.SetAlgorithm(alg); err != nil {
		return nil, err
	}
	return mgr, nil
}

// logConfigUpdates surfaces dynamic config changes. Tuning changes apply
// on the next process restart; the log line tells the operator which.
func logConfigUpdates(cm *config.Manager, logger *slog.Logger) {
	for update := range cm.OnChange("") {
		logger.Info("runtime configuration changed",
			"path", update.Path,
			"note", "fusion tuning applies on restart")
	}
}

// waitForShutdown blocks on signals and the REPL, then stops the
// manager within the shutdown timeout.
func waitForShutdown(mgr *manager.Manager, cliCfg *CLIConfig, logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	if !cliCfg.NoREPL {
		go runREPL(mgr, quitCh)
	}

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			return stopWithTimeout(mgr, cliCfg.ShutdownTimeout, logger)
		case <-quitCh:
			logger.Info("quit requested, shutting down")
			return stopWithTimeout(mgr, cliCfg.ShutdownTimeout, logger)
		case <-statsTicker.C:
			s := mgr.Stats()
			logger.Debug("system statistics",
				"uptime", s.Uptime.Round(time.Second),
				"processed", s.MessagesProcessed,
				"sent", s.MessagesSent,
				"dropped", s.MessagesDropped,
				"active_nodes", s.ActiveNodes,
				"state", s.CurrentAlgorithmState)
		}
	}
}

func stopWithTimeout(mgr *manager.Manager, timeout time.Duration, logger *slog.Logger) error {
	done := make(chan error, 1)
	go func() { done <- mgr.Stop() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		logger.Error("shutdown timed out", "timeout", timeout)
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}
