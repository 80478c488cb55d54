package manager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oraqon/dp-aero-L2/bus"
	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAlgorithm captures every hook invocation for assertions.
type recordingAlgorithm struct {
	mu        sync.Mutex
	processed []string
	triggers  []string
	// onProcess, when set, runs inside ProcessInbound with the context.
	onProcess func(ctx *fusion.Context, msg *message.Inbound)
}

func (a *recordingAlgorithm) Name() string        { return "RecordingAlgorithm" }
func (a *recordingAlgorithm) Version() string     { return "0.0.0" }
func (a *recordingAlgorithm) Description() string { return "test recorder" }

func (a *recordingAlgorithm) Initialize(ctx *fusion.Context) error {
	ctx.StateName = "IDLE"
	return nil
}

func (a *recordingAlgorithm) ProcessInbound(ctx *fusion.Context, msg *message.Inbound) error {
	a.mu.Lock()
	a.processed = append(a.processed, msg.MessageID)
	a.mu.Unlock()
	if a.onProcess != nil {
		a.onProcess(ctx, msg)
	}
	return nil
}

func (a *recordingAlgorithm) Update(*fusion.Context) error { return nil }

func (a *recordingAlgorithm) HandleTrigger(_ *fusion.Context, name string, data any) error {
	a.mu.Lock()
	a.triggers = append(a.triggers, fmt.Sprintf("%s:%v", name, data))
	a.mu.Unlock()
	return nil
}

func (a *recordingAlgorithm) Shutdown(*fusion.Context) error { return nil }

func (a *recordingAlgorithm) processedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.processed...)
}

func (a *recordingAlgorithm) triggerLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.triggers...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AlgorithmUpdateInterval = 10 * time.Millisecond
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.NodeTimeout = 240 * time.Millisecond
	return cfg
}

func sensorMsg(id, node string) *message.Inbound {
	return &message.Inbound{
		MessageID: id,
		Sender:    &message.Sender{NodeID: node, NodeType: "radar"},
		SensorData: &message.SensorData{
			Radar: &message.RadarData{Detections: []message.RadarDetection{
				{Range: 10, RCS: 1.0},
			}},
		},
	}
}

func heartbeatMsg(id, node string) *message.Inbound {
	return &message.Inbound{
		MessageID: id,
		Sender:    &message.Sender{NodeID: node, NodeType: "radar"},
		Heartbeat: &message.Heartbeat{NodeID: node},
	}
}

func encode(t *testing.T, m *message.Inbound) []byte {
	t.Helper()
	data, err := message.EncodeInbound(m)
	require.NoError(t, err)
	return data
}

func TestLifecycle(t *testing.T) {
	m, err := New(testConfig(), bus.NewChanBus(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, m.State())

	// Start without an algorithm is a config error.
	require.Error(t, m.Start(context.Background()))

	alg := &recordingAlgorithm{}
	require.NoError(t, m.SetAlgorithm(alg))
	assert.Equal(t, StateReady, m.State())

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateRunning, m.State())

	// Double start and algorithm swap are rejected while running.
	require.Error(t, m.Start(context.Background()))
	require.Error(t, m.SetAlgorithm(&recordingAlgorithm{}))

	require.NoError(t, m.Stop())
	assert.Equal(t, StateStopped, m.State())

	// Stop is idempotent.
	require.NoError(t, m.Stop())
}

func TestConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.WorkerThreads = 0
	_, err := New(cfg, bus.NewChanBus())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.L1ToL2Topic = ""
	_, err = New(cfg, bus.NewChanBus())
	assert.Error(t, err)
}

// S4: with a queue of three, five messages enqueued before any worker
// runs leave exactly m3,m4,m5, processed in that order.
func TestQueueOverflowDropsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.MessageQueueSize = 3
	cfg.WorkerThreads = 1

	m, err := New(cfg, bus.NewChanBus(), WithLogger(quietLogger()))
	require.NoError(t, err)
	alg := &recordingAlgorithm{}
	require.NoError(t, m.SetAlgorithm(alg))

	// Enqueue before any worker exists.
	for i := 1; i <= 5; i++ {
		m.handleInbound(encode(t, sensorMsg(fmt.Sprintf("m%d", i), "radar_001")))
	}
	assert.Equal(t, uint64(2), m.messagesDropped.Load())

	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop()) }()

	require.Eventually(t, func() bool {
		return len(alg.processedIDs()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"m3", "m4", "m5"}, alg.processedIDs())
}

// P3: outputs appended during one algorithm call hit the wire in append
// order.
func TestOutputOrderingPreserved(t *testing.T) {
	b := bus.NewChanBus()
	cfg := testConfig()
	cfg.WorkerThreads = 2

	alg := &recordingAlgorithm{
		onProcess: func(ctx *fusion.Context, msg *message.Inbound) {
			for i := 0; i < 5; i++ {
				ctx.AddOutput(&message.Outbound{
					MessageID:     fmt.Sprintf("%s_out_%d", msg.MessageID, i),
					TimestampMS:   1,
					SystemCommand: &message.SystemCommand{CommandType: message.SysSyncTime},
				})
			}
		},
	}

	m, err := New(cfg, b, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, m.SetAlgorithm(alg))

	var mu sync.Mutex
	var published []string
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go func() {
		_ = b.Subscribe(subCtx, cfg.L2ToL1Topic, func(payload []byte) {
			out, err := message.DecodeOutbound(payload)
			if err != nil {
				return
			}
			mu.Lock()
			published = append(published, out.MessageID)
			mu.Unlock()
		})
	}()
	require.Eventually(t, func() bool { return b.SubscriberCount(cfg.L2ToL1Topic) == 1 },
		time.Second, time.Millisecond)

	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop()) }()

	m.handleInbound(encode(t, sensorMsg("burst", "radar_001")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) >= 5
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("burst_out_%d", i), published[i])
	}
}

func TestHeartbeatEmission(t *testing.T) {
	b := bus.NewChanBus()
	cfg := testConfig()

	var mu sync.Mutex
	var ids []string
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go func() {
		_ = b.Subscribe(subCtx, cfg.HeartbeatTopic, func(payload []byte) {
			out, err := message.DecodeOutbound(payload)
			if err != nil || out.SystemCommand == nil {
				return
			}
			mu.Lock()
			ids = append(ids, out.MessageID)
			mu.Unlock()
		})
	}()
	require.Eventually(t, func() bool { return b.SubscriberCount(cfg.HeartbeatTopic) == 1 },
		time.Second, time.Millisecond)

	m, err := New(cfg, b, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, m.SetAlgorithm(&recordingAlgorithm{}))
	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "L2_0", ids[0])
	assert.Equal(t, "L2_1", ids[1])
}

// S3: a silent node is evicted exactly once and the algorithm hears
// about it; a heartbeating node survives.
func TestNodeEviction(t *testing.T) {
	b := bus.NewChanBus()
	cfg := testConfig()

	alg := &recordingAlgorithm{}
	m, err := New(cfg, b, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, m.SetAlgorithm(alg))
	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop()) }()

	require.Eventually(t, func() bool { return b.SubscriberCount(cfg.L1ToL2Topic) == 1 },
		time.Second, time.Millisecond)

	ctx := context.Background()
	seq := 0
	beat := func(node string) {
		seq++
		_ = b.Publish(ctx, cfg.L1ToL2Topic, encode(t, heartbeatMsg(fmt.Sprintf("hb_%s_%d", node, seq), node)))
	}

	beat("A")
	beat("B")
	require.Eventually(t, func() bool { return m.NodeRegistry().Count() == 2 },
		time.Second, time.Millisecond)

	// Keep A alive while B stays silent past the timeout.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(40 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				beat("A")
			}
		}
	}()

	require.Eventually(t, func() bool {
		for _, tr := range alg.triggerLog() {
			if tr == "node_timeout:B" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	close(stop)
	wg.Wait()

	// A is still active; B is gone, and was reported exactly once.
	assert.Contains(t, m.NodeRegistry().Active(cfg.NodeTimeout), "A")
	_, ok := m.NodeRegistry().Get("B")
	assert.False(t, ok)

	count := 0
	for _, tr := range alg.triggerLog() {
		if tr == "node_timeout:B" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestHeartbeatAndStatusBypassQueue(t *testing.T) {
	cfg := testConfig()
	m, err := New(cfg, bus.NewChanBus(), WithLogger(quietLogger()))
	require.NoError(t, err)
	alg := &recordingAlgorithm{}
	require.NoError(t, m.SetAlgorithm(alg))

	m.handleInbound(encode(t, heartbeatMsg("hb1", "radar_001")))
	status := &message.Inbound{
		MessageID:  "st1",
		Sender:     &message.Sender{NodeID: "radar_001", NodeType: "radar"},
		NodeStatus: &message.NodeStatus{NodeID: "radar_001", Status: message.StatusDegraded},
	}
	m.handleInbound(encode(t, status))

	// Registry saw both; neither reached the queue.
	st, ok := m.NodeRegistry().StatusOf("radar_001")
	require.True(t, ok)
	assert.Equal(t, message.StatusDegraded, st)
	assert.True(t, m.queue.IsEmpty())
}

func TestDuplicateMessagesDropped(t *testing.T) {
	cfg := testConfig()
	m, err := New(cfg, bus.NewChanBus(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, m.SetAlgorithm(&recordingAlgorithm{}))

	m.handleInbound(encode(t, sensorMsg("dup", "radar_001")))
	m.handleInbound(encode(t, sensorMsg("dup", "radar_001")))
	assert.Equal(t, 1, m.queue.Size())
}

func TestUndecodablePayloadDropped(t *testing.T) {
	cfg := testConfig()
	m, err := New(cfg, bus.NewChanBus(), WithLogger(quietLogger()))
	require.NoError(t, err)

	m.handleInbound([]byte("{garbage"))
	assert.True(t, m.queue.IsEmpty())
	assert.Equal(t, 0, m.NodeRegistry().Count())
}

func TestStatsSnapshot(t *testing.T) {
	cfg := testConfig()
	b := bus.NewChanBus()
	m, err := New(cfg, b, WithLogger(quietLogger()))
	require.NoError(t, err)
	alg := &recordingAlgorithm{}
	require.NoError(t, m.SetAlgorithm(alg))
	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop()) }()

	m.handleInbound(encode(t, sensorMsg("s1", "radar_001")))
	require.Eventually(t, func() bool {
		return m.Stats().MessagesProcessed == 1
	}, 2*time.Second, 5*time.Millisecond)

	stats := m.Stats()
	assert.Equal(t, "IDLE", stats.CurrentAlgorithmState)
	assert.Equal(t, 1, stats.ActiveNodes)
	assert.GreaterOrEqual(t, stats.Uptime, time.Duration(0))
}

func TestTriggerEvent(t *testing.T) {
	cfg := testConfig()
	m, err := New(cfg, bus.NewChanBus(), WithLogger(quietLogger()))
	require.NoError(t, err)
	alg := &recordingAlgorithm{}
	require.NoError(t, m.SetAlgorithm(alg))

	m.TriggerEvent("reset", nil)
	assert.Equal(t, []string{"reset:<nil>"}, alg.triggerLog())
}
