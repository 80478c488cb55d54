package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/oraqon/dp-aero-L2/natsclient"
)

// kvBucket holds runtime-tunable configuration. Keys are dotted section
// paths ("fusion.update_interval"); values are JSON.
const kvBucket = "l2_config"

// Update notifies a subscriber that configuration changed.
type Update struct {
	Path   string      // changed path, e.g. "fusion"
	Config *SafeConfig // full latest configuration
}

// Manager watches the NATS KV config bucket and fans changes out to
// subscribers. The file-loaded config is the base; KV entries override
// sections at runtime.
type Manager struct {
	config  *SafeConfig
	kv      jetstream.KeyValue
	kvStore *natsclient.KVStore
	logger  *slog.Logger

	mu          sync.RWMutex
	subscribers map[string][]chan Update

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// NewManager creates the KV bucket if needed and returns a manager over
// the given base configuration.
func NewManager(cfg *Config, client *natsclient.Client, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("nats client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()
	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      kvBucket,
		Description: "L2 fusion runtime configuration",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("create/get KV bucket: %w", err)
	}

	return &Manager{
		config:      NewSafeConfig(cfg),
		kv:          kv,
		kvStore:     client.NewKVStore(kv),
		logger:      logger,
		subscribers: make(map[string][]chan Update),
		shutdownCh:  make(chan struct{}),
	}, nil
}

// Config returns the live configuration snapshot holder.
func (m *Manager) Config() *SafeConfig { return m.config }

// OnChange subscribes to updates whose path starts with pattern. The
// returned channel is closed on Stop.
func (m *Manager) OnChange(pattern string) <-chan Update {
	ch := make(chan Update, 8)
	m.mu.Lock()
	m.subscribers[pattern] = append(m.subscribers[pattern], ch)
	m.mu.Unlock()
	return ch
}

// Publish writes a section override into the KV bucket; watchers on
// every replica pick it up.
func (m *Manager) Publish(ctx context.Context, path string, section any) error {
	data, err := json.Marshal(section)
	if err != nil {
		return fmt.Errorf("marshal section %s: %w", path, err)
	}
	if _, err := m.kvStore.Put(ctx, path, data); err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Start launches the KV watch loop.
func (m *Manager) Start(ctx context.Context) error {
	watcher, err := m.kv.WatchAll(ctx)
	if err != nil {
		return fmt.Errorf("watch config bucket: %w", err)
	}

	m.wg.Add(1)
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer m.wg.Done()
	defer func() {
		if err := watcher.Stop(); err != nil {
			m.logger.Debug("config watcher stop", "component", "ConfigManager", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				m.logger.Warn("config watch channel closed", "component", "ConfigManager")
				return
			}
			// The watcher sends nil once the initial replay finishes.
			if entry == nil {
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			m.applyEntry(entry)
		}
	}
}

// applyEntry folds one KV override into the live config and notifies
// matching subscribers.
func (m *Manager) applyEntry(entry jetstream.KeyValueEntry) {
	cfg := m.config.Get().Clone()

	var err error
	switch entry.Key() {
	case "fusion":
		err = json.Unmarshal(entry.Value(), &cfg.Fusion)
	case "topics":
		err = json.Unmarshal(entry.Value(), &cfg.Topics)
	case "metrics":
		err = json.Unmarshal(entry.Value(), &cfg.Metrics)
	case "logging":
		err = json.Unmarshal(entry.Value(), &cfg.Logging)
	default:
		m.logger.Debug("ignoring unknown config key",
			"component", "ConfigManager", "key", entry.Key())
		return
	}
	if err != nil {
		m.logger.Error("invalid config update",
			"component", "ConfigManager", "key", entry.Key(), "error", err)
		return
	}

	if err := m.config.Update(cfg); err != nil {
		m.logger.Error("rejected config update",
			"component", "ConfigManager", "key", entry.Key(), "error", err)
		return
	}

	m.logger.Info("configuration updated",
		"component", "ConfigManager", "key", entry.Key(), "revision", entry.Revision())
	m.notify(entry.Key())
}

// notify fans an update out to subscribers whose pattern prefixes the
// path. Slow subscribers miss updates rather than blocking the watcher.
func (m *Manager) notify(path string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for pattern, chans := range m.subscribers {
		if !strings.HasPrefix(path, pattern) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- Update{Path: path, Config: m.config}:
			default:
			}
		}
	}
}

// Stop halts the watch loop and closes subscriber channels. Safe to call
// more than once.
func (m *Manager) Stop(timeout time.Duration) {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	close(m.shutdownCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("config manager stop timed out", "component", "ConfigManager")
	}

	m.mu.Lock()
	for _, chans := range m.subscribers {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.subscribers = make(map[string][]chan Update)
	m.mu.Unlock()
}
