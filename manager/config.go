package manager

import (
	"time"

	"github.com/oraqon/dp-aero-L2/errors"
)

// Config tunes one Manager instance.
type Config struct {
	// Topics.
	L1ToL2Topic    string `json:"l1_to_l2_topic"`
	L2ToL1Topic    string `json:"l2_to_l1_topic"`
	HeartbeatTopic string `json:"heartbeat_topic"`

	// NodeTimeout evicts silent nodes; the monitor sweeps at a quarter
	// of this period.
	NodeTimeout time.Duration `json:"node_timeout"`
	// HeartbeatInterval paces the L2 SYNC_TIME heartbeat.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	// AlgorithmUpdateInterval paces the algorithm tick loop.
	AlgorithmUpdateInterval time.Duration `json:"algorithm_update_interval"`

	// WorkerThreads drain the inbound queue. Per-node ordering into the
	// algorithm is only guaranteed with a single worker.
	WorkerThreads int `json:"worker_threads"`
	// MessageQueueSize bounds the inbound queue; overflow drops the
	// oldest queued message.
	MessageQueueSize int `json:"message_queue_size"`

	// DedupeWindow drops replayed message ids seen within the window.
	// Zero disables deduplication.
	DedupeWindow time.Duration `json:"dedupe_window"`

	Debug bool `json:"debug"`
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		L1ToL2Topic:             "l1_to_l2",
		L2ToL1Topic:             "l2_to_l1",
		HeartbeatTopic:          "l2_heartbeat",
		NodeTimeout:             30 * time.Second,
		HeartbeatInterval:       5 * time.Second,
		AlgorithmUpdateInterval: 100 * time.Millisecond,
		WorkerThreads:           2,
		MessageQueueSize:        1000,
		DedupeWindow:            30 * time.Second,
	}
}

// Validate rejects configurations the manager cannot run with.
func (c Config) Validate() error {
	if c.L1ToL2Topic == "" || c.L2ToL1Topic == "" || c.HeartbeatTopic == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "topics required")
	}
	if c.WorkerThreads < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "worker_threads must be positive")
	}
	if c.MessageQueueSize < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "message_queue_size must be positive")
	}
	if c.NodeTimeout <= 0 || c.HeartbeatInterval <= 0 || c.AlgorithmUpdateInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "intervals must be positive")
	}
	return nil
}
