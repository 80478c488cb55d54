package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration. Flags override both the
// config file and the L2_* environment variables.
type CLIConfig struct {
	NATSURL        string
	Algorithm      string
	UpdateInterval time.Duration
	NodeTimeout    time.Duration
	Workers        int
	QueueSize      int
	MetricsPort    int

	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration

	NoREPL      bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("L2_NATS_URL", ""),
		"NATS server URL (env: L2_NATS_URL)")

	flag.StringVar(&cfg.Algorithm, "algorithm",
		getEnv("L2_ALGORITHM", ""),
		"Fusion algorithm name (env: L2_ALGORITHM)")

	flag.DurationVar(&cfg.UpdateInterval, "update-interval",
		getEnvDuration("L2_UPDATE_INTERVAL", 0),
		"Algorithm update interval, e.g. 100ms (env: L2_UPDATE_INTERVAL)")

	flag.DurationVar(&cfg.NodeTimeout, "node-timeout",
		getEnvDuration("L2_NODE_TIMEOUT", 0),
		"Node liveness timeout, e.g. 30s (env: L2_NODE_TIMEOUT)")

	flag.IntVar(&cfg.Workers, "workers",
		getEnvInt("L2_WORKERS", 0),
		"Number of worker goroutines (env: L2_WORKERS)")

	flag.IntVar(&cfg.QueueSize, "queue-size",
		getEnvInt("L2_QUEUE_SIZE", 0),
		"Inbound message queue size (env: L2_QUEUE_SIZE)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("L2_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: L2_METRICS_PORT)")

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("L2_CONFIG", ""),
		"Path to JSON configuration file (env: L2_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("L2_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: L2_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("L2_LOG_FORMAT", ""),
		"Log format: json, text (env: L2_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("L2_DEBUG", false),
		"Enable debug logging (env: L2_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("L2_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: L2_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.NoREPL, "no-repl", false, "Disable the interactive command prompt")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", cfg.Workers)
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - L2 sensor fusion coordinator

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Interactive commands (on stdin):
  stats            Print system statistics
  nodes            List active L1 nodes
  reset            Reset the fusion algorithm
  trigger <event>  Deliver a named trigger to the algorithm
  quit             Shut down and exit

Examples:
  # Run against a local NATS server
  %s --nats-url=nats://127.0.0.1:4222

  # Run with a site config plus overrides
  %s --config=configs/site.json --workers=4 --debug

Version: %s
Build: %s
`, os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
