package strategy

import (
	"sort"
	"sync"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/taskmanager"
)

// TargetPrioritizer scores and orders targets.
type TargetPrioritizer interface {
	// Priority scores a target; higher means more important.
	Priority(t *fusion.Target, ctx *fusion.Context) float64

	// Sort orders targets by descending priority. The result is a
	// permutation of the input; ties keep their input order.
	Sort(targets []*fusion.Target, ctx *fusion.Context) []*fusion.Target

	// Best returns the highest-priority target, or nil for an empty
	// slice. Ties resolve to the earliest in scan order.
	Best(targets []*fusion.Target, ctx *fusion.Context) *fusion.Target

	Name() string
}

// DeviceAssignmentStrategy picks devices for targets and tasks.
type DeviceAssignmentStrategy interface {
	// SelectForTarget returns the device to service a target, or "" when
	// none is suitable.
	SelectForTarget(t *fusion.Target, tm *taskmanager.Manager, ctx *fusion.Context) string

	// SelectForTask returns the device for a specific task type.
	SelectForTask(t *fusion.Target, taskType taskmanager.Type, tm *taskmanager.Manager, ctx *fusion.Context) string

	// Suitability scores a device for a target in [0,1]; 0 means it
	// cannot serve it at all.
	Suitability(deviceID string, t *fusion.Target, tm *taskmanager.Manager, ctx *fusion.Context) float64

	Name() string
}

// Base holds the swappable strategies for a strategy-based algorithm.
// Reads and swaps synchronize on an internal RWMutex independent of the
// algorithm lock, so a swap can land while an algorithm call is running.
type Base struct {
	mu          sync.RWMutex
	prioritizer TargetPrioritizer
	assigner    DeviceAssignmentStrategy
}

// SetPrioritizer swaps the target prioritizer.
func (b *Base) SetPrioritizer(p TargetPrioritizer) {
	b.mu.Lock()
	b.prioritizer = p
	b.mu.Unlock()
}

// Prioritizer returns the current prioritizer, or nil when unset.
func (b *Base) Prioritizer() TargetPrioritizer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prioritizer
}

// SetAssigner swaps the device assignment strategy.
func (b *Base) SetAssigner(s DeviceAssignmentStrategy) {
	b.mu.Lock()
	b.assigner = s
	b.mu.Unlock()
}

// Assigner returns the current assignment strategy, or nil when unset.
func (b *Base) Assigner() DeviceAssignmentStrategy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.assigner
}

// sortByPriority is the shared stable descending sort used by the
// reference prioritizers.
func sortByPriority(targets []*fusion.Target, ctx *fusion.Context, score func(*fusion.Target, *fusion.Context) float64) []*fusion.Target {
	out := append([]*fusion.Target(nil), targets...)
	sort.SliceStable(out, func(i, j int) bool {
		return score(out[i], ctx) > score(out[j], ctx)
	})
	return out
}

// bestByPriority is the shared argmax with first-wins tie breaking.
func bestByPriority(targets []*fusion.Target, ctx *fusion.Context, score func(*fusion.Target, *fusion.Context) float64) *fusion.Target {
	var best *fusion.Target
	bestScore := 0.0
	for _, t := range targets {
		s := score(t, ctx)
		if best == nil || s > bestScore {
			best = t
			bestScore = s
		}
	}
	return best
}
