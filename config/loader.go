package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Loader builds a Config from layered JSON files plus environment
// overrides. Later layers win field by field; env vars win over files.
type Loader struct {
	layers   []string
	validate bool
}

// NewLoader returns a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{validate: true}
}

// AddLayer appends a config file path. Missing optional layers are
// skipped at load time.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation toggles Validate on the final config.
func (l *Loader) EnableValidation(enable bool) {
	l.validate = enable
}

// LoadFile loads a single file over the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, layers and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		layered, err := l.loadJSONFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", path, err)
		}
		cfg = layered
	}

	l.applyEnvOverrides(cfg)

	if l.validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadJSONFile unmarshals a layer on top of base. Durations accept Go
// duration strings ("30s") as well as nanosecond integers.
func (l *Loader) loadJSONFile(path string, base *Config) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	normalizeDurations(raw)

	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	cfg := base.Clone()
	if err := json.Unmarshal(merged, cfg); err != nil {
		return nil, fmt.Errorf("apply layer: %w", err)
	}
	return cfg, nil
}

// durationKeys are the JSON fields parsed as duration strings.
var durationKeys = map[string]bool{
	"reconnect_wait":     true,
	"ping_interval":      true,
	"update_interval":    true,
	"node_timeout":       true,
	"heartbeat_interval": true,
	"dedupe_window":      true,
}

// normalizeDurations rewrites "30s"-style strings into nanosecond
// numbers so encoding/json can land them in time.Duration fields.
func normalizeDurations(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			normalizeDurations(val)
		case string:
			if durationKeys[k] {
				if d, err := time.ParseDuration(val); err == nil {
					m[k] = int64(d)
				}
			}
		}
	}
}

// applyEnvOverrides maps L2_* environment variables onto the config.
// Invalid values are ignored in favor of the layered value.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("L2_NATS_URL"); v != "" && validateEnvVar("L2_NATS_URL", v) == nil {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("L2_ALGORITHM"); v != "" && validateEnvVar("L2_ALGORITHM", v) == nil {
		cfg.Fusion.Algorithm = v
	}
	if v := os.Getenv("L2_UPDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fusion.UpdateInterval = d
		}
	}
	if v := os.Getenv("L2_NODE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fusion.NodeTimeout = d
		}
	}
	if v := os.Getenv("L2_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fusion.WorkerThreads = n
		}
	}
	if v := os.Getenv("L2_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
	if v := os.Getenv("L2_LOG_LEVEL"); v != "" && validateEnvVar("L2_LOG_LEVEL", v) == nil {
		cfg.Logging.Level = v
	}
}
