package fusion

import (
	"fmt"
	"testing"

	"github.com/oraqon/dp-aero-L2/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboundFrom(node string, seq int) *message.Inbound {
	return &message.Inbound{
		MessageID: fmt.Sprintf("%s_%d", node, seq),
		Sender:    &message.Sender{NodeID: node, NodeType: "radar"},
		Heartbeat: &message.Heartbeat{NodeID: node},
	}
}

func TestRecordInboundTracksLatestAndHistory(t *testing.T) {
	c := NewContext()

	for i := 0; i < 3; i++ {
		c.RecordInbound(inboundFrom("radar_001", i))
	}
	c.RecordInbound(inboundFrom("lidar_001", 0))

	latest, ok := c.Latest("radar_001")
	require.True(t, ok)
	assert.Equal(t, "radar_001_2", latest.MessageID)
	assert.Len(t, c.History("radar_001"), 3)
	assert.Len(t, c.History("lidar_001"), 1)
}

func TestHistoryTrimsOldestHalf(t *testing.T) {
	c := NewContext()
	for i := 0; i < 101; i++ {
		c.RecordInbound(inboundFrom("n", i))
	}

	h := c.History("n")
	require.Len(t, h, 50)
	// The newest 50 survive: 51..100.
	assert.Equal(t, "n_51", h[0].MessageID)
	assert.Equal(t, "n_100", h[len(h)-1].MessageID)
}

func TestForgetNode(t *testing.T) {
	c := NewContext()
	c.RecordInbound(inboundFrom("n", 0))
	c.ForgetNode("n")

	_, ok := c.Latest("n")
	assert.False(t, ok)
	assert.Empty(t, c.History("n"))
}

func TestValueTypeMismatchIsAbsent(t *testing.T) {
	c := NewContext()
	c.Set("count", 3)

	v, ok := Value[int](c, "count")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = Value[string](c, "count")
	assert.False(t, ok)
	_, ok = Value[int](c, "missing")
	assert.False(t, ok)
}

func TestDrainOutputsMovesInOrder(t *testing.T) {
	c := NewContext()
	for i := 0; i < 3; i++ {
		c.AddOutput(&message.Outbound{
			MessageID:     fmt.Sprintf("L2_%d", i),
			SystemCommand: &message.SystemCommand{CommandType: message.SysSyncTime},
		})
	}

	out := c.DrainOutputs()
	require.Len(t, out, 3)
	for i, m := range out {
		assert.Equal(t, fmt.Sprintf("L2_%d", i), m.MessageID)
	}
	assert.Zero(t, c.PendingCount())
	assert.Empty(t, c.DrainOutputs())
}

func TestTargetsHelper(t *testing.T) {
	c := NewContext()
	assert.Empty(t, Targets(c))

	m := map[string]*Target{"target_0": NewTarget("target_0")}
	c.Set(TargetsKey, m)
	assert.Len(t, Targets(c), 1)

	// Wrong type under the key reads as empty, not a panic.
	c.Set(TargetsKey, "oops")
	assert.Empty(t, Targets(c))
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	r.Register(func() Algorithm { return &nopAlgorithm{name: "alpha"} })
	r.Register(func() Algorithm { return &nopAlgorithm{name: "beta"} })

	assert.True(t, r.Available("alpha"))
	assert.Equal(t, []string{"alpha", "beta"}, r.Names())

	a, err := r.Create("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", a.Name())

	b, err := r.Create("alpha")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "Create must return fresh instances")

	_, err = r.Create("nope")
	assert.Error(t, err)
}

type nopAlgorithm struct{ name string }

func (a *nopAlgorithm) Name() string        { return a.name }
func (a *nopAlgorithm) Version() string     { return "0.0.0" }
func (a *nopAlgorithm) Description() string { return "test stub" }

func (a *nopAlgorithm) Initialize(*Context) error                       { return nil }
func (a *nopAlgorithm) ProcessInbound(*Context, *message.Inbound) error { return nil }
func (a *nopAlgorithm) Update(*Context) error                           { return nil }
func (a *nopAlgorithm) HandleTrigger(*Context, string, any) error       { return nil }
func (a *nopAlgorithm) Shutdown(*Context) error                         { return nil }
