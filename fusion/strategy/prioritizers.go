package strategy

import (
	"math"

	"github.com/oraqon/dp-aero-L2/fusion"
)

// ConfidenceBasedPrioritizer scores targets by their confidence alone.
type ConfidenceBasedPrioritizer struct{}

// NewConfidenceBasedPrioritizer returns the default prioritizer.
func NewConfidenceBasedPrioritizer() *ConfidenceBasedPrioritizer {
	return &ConfidenceBasedPrioritizer{}
}

func (p *ConfidenceBasedPrioritizer) Name() string { return "ConfidenceBasedPrioritizer" }

// Priority is exactly the target's confidence.
func (p *ConfidenceBasedPrioritizer) Priority(t *fusion.Target, _ *fusion.Context) float64 {
	return t.Confidence
}

func (p *ConfidenceBasedPrioritizer) Sort(targets []*fusion.Target, ctx *fusion.Context) []*fusion.Target {
	return sortByPriority(targets, ctx, p.Priority)
}

func (p *ConfidenceBasedPrioritizer) Best(targets []*fusion.Target, ctx *fusion.Context) *fusion.Target {
	return bestByPriority(targets, ctx, p.Priority)
}

// ThreatWeights balances the threat score components. Weights need not
// sum to 1; the combined score is clamped to [0,1].
type ThreatWeights struct {
	Range      float64
	Velocity   float64
	Confidence float64
	Heading    float64
}

// DefaultThreatWeights mirror the reference tuning.
func DefaultThreatWeights() ThreatWeights {
	return ThreatWeights{Range: 0.3, Velocity: 0.2, Confidence: 0.3, Heading: 0.2}
}

// ThreatBasedPrioritizer scores targets by how threatening they are:
// close, fast, well-observed, and inbound targets rank first.
type ThreatBasedPrioritizer struct {
	weights ThreatWeights
}

// NewThreatBasedPrioritizer builds a prioritizer with the default weights.
func NewThreatBasedPrioritizer() *ThreatBasedPrioritizer {
	return &ThreatBasedPrioritizer{weights: DefaultThreatWeights()}
}

// NewThreatBasedPrioritizerWithWeights builds a prioritizer with custom
// weights.
func NewThreatBasedPrioritizerWithWeights(w ThreatWeights) *ThreatBasedPrioritizer {
	return &ThreatBasedPrioritizer{weights: w}
}

func (p *ThreatBasedPrioritizer) Name() string { return "ThreatBasedPrioritizer" }

// Weights returns the current weights.
func (p *ThreatBasedPrioritizer) Weights() ThreatWeights { return p.weights }

// Priority combines range, speed, confidence and approach components.
// The heading term is skipped at zero range or zero speed, where the
// approach direction is undefined.
func (p *ThreatBasedPrioritizer) Priority(t *fusion.Target, _ *fusion.Context) float64 {
	priority := 0.0

	r := t.Range()
	rangeScore := 1.0
	if r > 0 {
		rangeScore = math.Exp(-r / 100.0)
	}
	priority += p.weights.Range * rangeScore

	speed := t.Speed()
	priority += p.weights.Velocity * math.Min(1.0, speed/50.0)

	priority += p.weights.Confidence * t.Confidence

	if r > 0 && speed > 0 {
		approach := -(t.VX*t.X + t.VY*t.Y + t.VZ*t.Z) / (r * speed)
		priority += p.weights.Heading * math.Max(0, approach)
	}

	return math.Max(0, math.Min(1, priority))
}

func (p *ThreatBasedPrioritizer) Sort(targets []*fusion.Target, ctx *fusion.Context) []*fusion.Target {
	return sortByPriority(targets, ctx, p.Priority)
}

func (p *ThreatBasedPrioritizer) Best(targets []*fusion.Target, ctx *fusion.Context) *fusion.Target {
	return bestByPriority(targets, ctx, p.Priority)
}
