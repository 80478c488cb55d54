package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oraqon/dp-aero-L2/pkg/security"
)

// Config is the full configuration surface of the L2 fusion process.
type Config struct {
	NATS    NATSConfig    `json:"nats"`
	Topics  TopicsConfig  `json:"topics"`
	Fusion  FusionConfig  `json:"fusion"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// NATSConfig describes the bus connection.
type NATSConfig struct {
	URL           string        `json:"url"`
	MaxReconnects int           `json:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait"`
	PingInterval  time.Duration `json:"ping_interval"`
}

// TopicsConfig names the bus topics.
type TopicsConfig struct {
	L1ToL2    string `json:"l1_to_l2"`
	L2ToL1    string `json:"l2_to_l1"`
	Heartbeat string `json:"heartbeat"`
}

// FusionConfig tunes the fusion manager and algorithm selection.
type FusionConfig struct {
	Algorithm         string        `json:"algorithm"`
	UpdateInterval    time.Duration `json:"update_interval"`
	NodeTimeout       time.Duration `json:"node_timeout"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	WorkerThreads     int           `json:"worker_threads"`
	MessageQueueSize  int           `json:"message_queue_size"`
	DedupeWindow      time.Duration `json:"dedupe_window"`
}

// MetricsConfig controls the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port     int             `json:"port"`
	Path     string          `json:"path"`
	Security security.Config `json:"security"`
}

// LoggingConfig controls slog setup.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
			PingInterval:  20 * time.Second,
		},
		Topics: TopicsConfig{
			L1ToL2:    "l1_to_l2",
			L2ToL1:    "l2_to_l1",
			Heartbeat: "l2_heartbeat",
		},
		Fusion: FusionConfig{
			Algorithm:         "TargetTrackingAlgorithm",
			UpdateInterval:    100 * time.Millisecond,
			NodeTimeout:       30 * time.Second,
			HeartbeatInterval: 5 * time.Second,
			WorkerThreads:     2,
			MessageQueueSize:  1000,
			DedupeWindow:      30 * time.Second,
		},
		Metrics: MetricsConfig{Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Topics.L1ToL2 == "" || c.Topics.L2ToL1 == "" || c.Topics.Heartbeat == "" {
		return fmt.Errorf("all three topics are required")
	}
	if c.Fusion.Algorithm == "" {
		return fmt.Errorf("fusion.algorithm is required")
	}
	if c.Fusion.WorkerThreads < 1 {
		return fmt.Errorf("fusion.worker_threads must be positive, got %d", c.Fusion.WorkerThreads)
	}
	if c.Fusion.MessageQueueSize < 1 {
		return fmt.Errorf("fusion.message_queue_size must be positive, got %d", c.Fusion.MessageQueueSize)
	}
	if c.Fusion.UpdateInterval <= 0 || c.Fusion.NodeTimeout <= 0 || c.Fusion.HeartbeatInterval <= 0 {
		return fmt.Errorf("fusion intervals must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	tlsCfg := &out.Metrics.Security.TLS
	tlsCfg.Server.ACME.Domains = append([]string(nil), tlsCfg.Server.ACME.Domains...)
	tlsCfg.Server.MTLS.ClientCAFiles = append([]string(nil), tlsCfg.Server.MTLS.ClientCAFiles...)
	tlsCfg.Server.MTLS.AllowedClientCNs = append([]string(nil), tlsCfg.Server.MTLS.AllowedClientCNs...)
	tlsCfg.Client.CAFiles = append([]string(nil), tlsCfg.Client.CAFiles...)
	tlsCfg.Client.ACME.Domains = append([]string(nil), tlsCfg.Client.ACME.Domains...)
	return &out
}

// String renders the config as indented JSON for logs and --validate.
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(data)
}

// SaveToFile writes the config as JSON with restrictive permissions.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// SafeConfig is an atomically swappable configuration snapshot. Readers
// get a consistent *Config; writers replace the whole snapshot.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps an initial snapshot.
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{cfg: cfg}
}

// Get returns the current snapshot.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg
}

// Update validates and installs a new snapshot.
func (sc *SafeConfig) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	sc.cfg = cfg
	sc.mu.Unlock()
	return nil
}
