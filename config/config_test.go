package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejections(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"missing nats url":  func(c *Config) { c.NATS.URL = "" },
		"missing topic":     func(c *Config) { c.Topics.L2ToL1 = "" },
		"missing algorithm": func(c *Config) { c.Fusion.Algorithm = "" },
		"zero workers":      func(c *Config) { c.Fusion.WorkerThreads = 0 },
		"zero queue":        func(c *Config) { c.Fusion.MessageQueueSize = 0 },
		"bad interval":      func(c *Config) { c.Fusion.UpdateInterval = 0 },
		"bad log level":     func(c *Config) { c.Logging.Level = "verbose" },
		"bad log format":    func(c *Config) { c.Logging.Format = "xml" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func writeLayer(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoaderLayerMerging(t *testing.T) {
	dir := t.TempDir()
	base := writeLayer(t, dir, "base.json", `{
		"nats": {"url": "nats://base:4222"},
		"fusion": {"worker_threads": 4}
	}`)
	site := writeLayer(t, dir, "site.json", `{
		"nats": {"url": "nats://site:4222"}
	}`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	cfg, err := l.Load()
	require.NoError(t, err)

	// Later layer wins; untouched fields flow through from earlier
	// layers and defaults.
	assert.Equal(t, "nats://site:4222", cfg.NATS.URL)
	assert.Equal(t, 4, cfg.Fusion.WorkerThreads)
	assert.Equal(t, "l1_to_l2", cfg.Topics.L1ToL2)
}

func TestLoaderParsesDurationStrings(t *testing.T) {
	dir := t.TempDir()
	path := writeLayer(t, dir, "cfg.json", `{
		"fusion": {"node_timeout": "45s", "update_interval": "50ms"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Fusion.NodeTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Fusion.UpdateInterval)
}

func TestLoaderSkipsMissingLayers(t *testing.T) {
	l := NewLoader()
	l.AddLayer(filepath.Join(t.TempDir(), "absent.json"))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default().NATS.URL, cfg.NATS.URL)
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("L2_NATS_URL", "nats://env:4222")
	t.Setenv("L2_WORKERS", "8")
	t.Setenv("L2_NODE_TIMEOUT", "90s")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, 8, cfg.Fusion.WorkerThreads)
	assert.Equal(t, 90*time.Second, cfg.Fusion.NodeTimeout)
}

func TestLoaderRejectsInvalidMergedConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeLayer(t, dir, "bad.json", `{"fusion": {"worker_threads": -1}}`)

	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestLoaderRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeLayer(t, dir, "cfg.yaml", `nats: {}`)

	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestSafeConfigSwap(t *testing.T) {
	sc := NewSafeConfig(Default())
	assert.Equal(t, "nats://127.0.0.1:4222", sc.Get().NATS.URL)

	next := Default()
	next.NATS.URL = "nats://other:4222"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, "nats://other:4222", sc.Get().NATS.URL)

	// Invalid snapshots are rejected and the old one stays.
	bad := Default()
	bad.Fusion.WorkerThreads = 0
	require.Error(t, sc.Update(bad))
	assert.Equal(t, "nats://other:4222", sc.Get().NATS.URL)
}
