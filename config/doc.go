// Package config provides configuration management for the L2 fusion
// process.
//
// Configuration is assembled from three sources, lowest to highest
// precedence: built-in defaults, layered JSON files, and L2_* environment
// variables. The resulting Config covers the bus connection, topic names,
// fusion manager tuning, the metrics endpoint, and logging.
//
// SafeConfig wraps a Config snapshot behind an RWMutex so hot paths read
// a consistent view while updates swap the whole snapshot.
//
// Manager layers runtime mutability on top: it watches the l2_config NATS
// KV bucket and folds section overrides ("fusion", "topics", "metrics",
// "logging") into the live SafeConfig, notifying subscribers by path
// prefix. Invalid overrides are logged and rejected; the last valid
// snapshot stays in force.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/site.json") // overrides base
//	cfg, err := loader.Load()
//
// # Dynamic Configuration
//
//	cm, err := config.NewManager(cfg, natsClient, logger)
//	if err := cm.Start(ctx); err != nil { ... }
//	defer cm.Stop(5 * time.Second)
//
//	for update := range cm.OnChange("fusion") {
//	    applyTuning(update.Config.Get().Fusion)
//	}
//
// # Security
//
// File loading enforces path validation (no traversal, JSON only), a
// 10MB size cap, and regular-file checks before parsing.
package config
