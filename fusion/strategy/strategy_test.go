package strategy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/taskmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func target(id string, x, y, z, vx, vy, vz, conf float64) *fusion.Target {
	t := fusion.NewTarget(id)
	t.X, t.Y, t.Z = x, y, z
	t.VX, t.VY, t.VZ = vx, vy, vz
	t.Confidence = conf
	return t
}

func TestConfidencePriorityIsConfidence(t *testing.T) {
	p := NewConfidenceBasedPrioritizer()
	ctx := fusion.NewContext()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		conf := rng.Float64()
		tgt := target("t", 0, 0, 0, 0, 0, 0, conf)
		assert.InDelta(t, conf, p.Priority(tgt, ctx), 1e-12)
	}
}

func TestSortIsOrderedPermutation(t *testing.T) {
	p := NewConfidenceBasedPrioritizer()
	ctx := fusion.NewContext()

	rng := rand.New(rand.NewSource(7))
	var targets []*fusion.Target
	for i := 0; i < 20; i++ {
		targets = append(targets, target("t", 0, 0, 0, 0, 0, 0, rng.Float64()))
	}

	sorted := p.Sort(targets, ctx)
	require.Len(t, sorted, len(targets))

	// Permutation: every input pointer appears exactly once.
	seen := make(map[*fusion.Target]bool)
	for _, tgt := range sorted {
		assert.False(t, seen[tgt])
		seen[tgt] = true
	}
	for _, tgt := range targets {
		assert.True(t, seen[tgt])
	}

	// Descending priority.
	for i := 1; i < len(sorted); i++ {
		assert.GreaterOrEqual(t, p.Priority(sorted[i-1], ctx), p.Priority(sorted[i], ctx))
	}

	// Input slice order is untouched.
	assert.NotSame(t, &targets[0], &sorted[0])
}

func TestBestTiesBreakByScanOrder(t *testing.T) {
	p := NewConfidenceBasedPrioritizer()
	ctx := fusion.NewContext()

	a := target("a", 0, 0, 0, 0, 0, 0, 0.5)
	b := target("b", 0, 0, 0, 0, 0, 0, 0.5)
	assert.Same(t, a, p.Best([]*fusion.Target{a, b}, ctx))
	assert.Same(t, b, p.Best([]*fusion.Target{b, a}, ctx))
	assert.Nil(t, p.Best(nil, ctx))
}

func TestThreatPriorityComponents(t *testing.T) {
	p := NewThreatBasedPrioritizer()
	ctx := fusion.NewContext()

	// Target at the origin: range score 1, no heading term.
	origin := target("o", 0, 0, 0, 0, 0, 0, 0.5)
	w := p.Weights()
	want := w.Range*1.0 + w.Confidence*0.5
	assert.InDelta(t, want, p.Priority(origin, ctx), 1e-9)

	// Stationary target: heading term skipped, no NaN.
	still := target("s", 100, 0, 0, 0, 0, 0, 0.5)
	assert.False(t, math.IsNaN(p.Priority(still, ctx)))

	// Approaching beats receding, all else equal.
	inbound := target("in", 100, 0, 0, -10, 0, 0, 0.5)
	outbound := target("out", 100, 0, 0, 10, 0, 0, 0.5)
	assert.Greater(t, p.Priority(inbound, ctx), p.Priority(outbound, ctx))
}

func TestThreatPrioritizerScenario(t *testing.T) {
	// S5: close fast approacher outranks a distant drifter.
	p := NewThreatBasedPrioritizer()
	ctx := fusion.NewContext()

	closeFast := target("close_fast", 50, 30, 10, -25, -15, -5, 0.85)
	distantSlow := target("distant_slow", 1000, 800, 200, 2, 1, 0.5, 0.70)

	best := p.Best([]*fusion.Target{distantSlow, closeFast}, ctx)
	require.NotNil(t, best)
	assert.Equal(t, "close_fast", best.ID)
}

func TestThreatPriorityClamped(t *testing.T) {
	p := NewThreatBasedPrioritizerWithWeights(ThreatWeights{Range: 5, Velocity: 5, Confidence: 5, Heading: 5})
	ctx := fusion.NewContext()
	tgt := target("t", 1, 0, 0, -100, 0, 0, 1.0)

	got := p.Priority(tgt, ctx)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestSingleDeviceStrategy(t *testing.T) {
	s := NewSingleDeviceAssignmentStrategy("default_device")
	tm := taskmanager.New()
	ctx := fusion.NewContext()
	tgt := target("t", 0, 0, 0, 0, 0, 0, 0.5)

	assert.Equal(t, "default_device", s.SelectForTarget(tgt, tm, ctx))
	assert.Equal(t, "default_device", s.SelectForTask(tgt, taskmanager.PointGimbal, tm, ctx))
	assert.InDelta(t, 1.0, s.Suitability("default_device", tgt, tm, ctx), 1e-9)
	assert.InDelta(t, 0.0, s.Suitability("other", tgt, tm, ctx), 1e-9)
}

func TestCapabilitySuitability(t *testing.T) {
	s := NewCapabilityBasedAssignmentStrategy()
	tm := taskmanager.New()
	ctx := fusion.NewContext()

	tm.RegisterCapabilities("sensor_only", []string{"radar"})
	tm.RegisterCapabilities("gimbal_only", []string{"gimbal_control"})
	tm.RegisterCapabilities("full", []string{"radar", "gimbal_control"})
	tm.RegisterCapabilities("coherent_001", []string{"coherent", "camera"})

	low := target("low", 0, 0, 0, 0, 0, 0, 0.5)
	high := target("high", 0, 0, 0, 0, 0, 0, 0.9)

	assert.InDelta(t, 0.0, s.Suitability("unknown", low, tm, ctx), 1e-9)
	assert.InDelta(t, 0.5, s.Suitability("sensor_only", low, tm, ctx), 1e-9)
	assert.InDelta(t, 0.5, s.Suitability("gimbal_only", low, tm, ctx), 1e-9)
	assert.InDelta(t, 1.0, s.Suitability("full", low, tm, ctx), 1e-9)

	// Coherent bonus only for high-confidence targets, capped at 1.
	assert.InDelta(t, 1.0, s.Suitability("coherent_001", low, tm, ctx), 1e-9)
	assert.InDelta(t, 1.0, s.Suitability("coherent_001", high, tm, ctx), 1e-9)
	assert.InDelta(t, 1.0, s.Suitability("full", high, tm, ctx), 1e-9)
}

func TestCapabilitySelectPicksBestRegistered(t *testing.T) {
	s := NewCapabilityBasedAssignmentStrategy()
	tm := taskmanager.New()
	ctx := fusion.NewContext()

	tm.RegisterCapabilities("sensor_only", []string{"lidar"})
	tm.RegisterCapabilities("full", []string{"camera", "gimbal_control"})

	tgt := target("t", 0, 0, 0, 0, 0, 0, 0.5)
	assert.Equal(t, "full", s.SelectForTarget(tgt, tm, ctx))
}

func TestCapabilitySelectNoDevices(t *testing.T) {
	s := NewCapabilityBasedAssignmentStrategy()
	tm := taskmanager.New()
	ctx := fusion.NewContext()
	tgt := target("t", 0, 0, 0, 0, 0, 0, 0.5)

	// No registered devices and the fallback candidates have no
	// capabilities either: nothing suitable.
	assert.Equal(t, "", s.SelectForTarget(tgt, tm, ctx))
}

func TestBaseHotSwap(t *testing.T) {
	var b Base
	assert.Nil(t, b.Prioritizer())
	assert.Nil(t, b.Assigner())

	b.SetPrioritizer(NewConfidenceBasedPrioritizer())
	b.SetAssigner(NewSingleDeviceAssignmentStrategy("d"))
	assert.Equal(t, "ConfidenceBasedPrioritizer", b.Prioritizer().Name())
	assert.Equal(t, "SingleDeviceAssignmentStrategy", b.Assigner().Name())

	b.SetPrioritizer(NewThreatBasedPrioritizer())
	assert.Equal(t, "ThreatBasedPrioritizer", b.Prioritizer().Name())
}
