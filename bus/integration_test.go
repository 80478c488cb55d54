package bus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oraqon/dp-aero-L2/natsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_NATSBusRoundTrip exercises publish/subscribe against a
// real NATS server in a container.
func TestIntegration_NATSBusRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t)
	defer func() { _ = tc.Terminate() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewNATSBus(tc.Client, logger)

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	subErr := make(chan error, 1)
	go func() {
		subErr <- b.Subscribe(subCtx, "l1_to_l2", func(payload []byte) {
			mu.Lock()
			got = append(got, string(payload))
			mu.Unlock()
		})
	}()

	// Give the subscription a moment to land on the server.
	time.Sleep(200 * time.Millisecond)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), "l1_to_l2", []byte(fmt.Sprintf("m%d", i))))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, 5*time.Second, 20*time.Millisecond)

	// Arrival order matches publish order.
	mu.Lock()
	for i, payload := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), payload)
	}
	mu.Unlock()

	// Cancellation unblocks the subscribe loop cleanly.
	cancel()
	select {
	case err := <-subErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not return on cancel")
	}
}

// TestIntegration_NATSBusConcurrentPublish checks the publish mutex under
// contention.
func TestIntegration_NATSBusConcurrentPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t)
	defer func() { _ = tc.Terminate() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewNATSBus(tc.Client, logger)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = b.Publish(context.Background(), "l2_to_l1", []byte(fmt.Sprintf("w%d_%d", n, j)))
			}
		}(i)
	}
	wg.Wait()
}
