package config

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oraqon/dp-aero-L2/natsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_ManagerWatchesKV verifies that a KV put lands in the
// live config and reaches subscribers.
func TestIntegration_ManagerWatchesKV(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t, natsclient.WithJetStream(), natsclient.WithKV())
	defer func() { _ = tc.Terminate() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm, err := NewManager(Default(), tc.Client, logger)
	require.NoError(t, err)
	defer cm.Stop(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cm.Start(ctx))

	updates := cm.OnChange("fusion")

	// Push a tuning override through the bucket.
	next := Default().Fusion
	next.WorkerThreads = 6
	require.NoError(t, cm.Publish(ctx, "fusion", next))

	select {
	case update := <-updates:
		assert.Equal(t, "fusion", update.Path)
		assert.Equal(t, 6, update.Config.Get().Fusion.WorkerThreads)
	case <-time.After(10 * time.Second):
		t.Fatal("no config update received")
	}
}

// TestIntegration_ManagerRejectsInvalidOverride verifies that a broken
// override leaves the last valid snapshot in force.
func TestIntegration_ManagerRejectsInvalidOverride(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t, natsclient.WithJetStream(), natsclient.WithKV())
	defer func() { _ = tc.Terminate() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm, err := NewManager(Default(), tc.Client, logger)
	require.NoError(t, err)
	defer cm.Stop(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cm.Start(ctx))

	bad := Default().Fusion
	bad.WorkerThreads = 0 // fails validation
	require.NoError(t, cm.Publish(ctx, "fusion", bad))

	// The override is rejected asynchronously; the snapshot keeps the
	// valid worker count.
	assert.Never(t, func() bool {
		return cm.Config().Get().Fusion.WorkerThreads == 0
	}, 2*time.Second, 100*time.Millisecond)
}
