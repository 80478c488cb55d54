package strategy

import (
	"math"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/taskmanager"
)

// SingleDeviceAssignmentStrategy routes every task to one fixed device.
// Used for single-device deployments and the scenario tests.
type SingleDeviceAssignmentStrategy struct {
	deviceID string
}

// NewSingleDeviceAssignmentStrategy pins assignment to deviceID.
func NewSingleDeviceAssignmentStrategy(deviceID string) *SingleDeviceAssignmentStrategy {
	return &SingleDeviceAssignmentStrategy{deviceID: deviceID}
}

func (s *SingleDeviceAssignmentStrategy) Name() string { return "SingleDeviceAssignmentStrategy" }

func (s *SingleDeviceAssignmentStrategy) SelectForTarget(*fusion.Target, *taskmanager.Manager, *fusion.Context) string {
	return s.deviceID
}

func (s *SingleDeviceAssignmentStrategy) SelectForTask(*fusion.Target, taskmanager.Type, *taskmanager.Manager, *fusion.Context) string {
	return s.deviceID
}

func (s *SingleDeviceAssignmentStrategy) Suitability(deviceID string, _ *fusion.Target, _ *taskmanager.Manager, _ *fusion.Context) float64 {
	if deviceID == s.deviceID {
		return 1.0
	}
	return 0.0
}

// CapabilityBasedAssignmentStrategy scores registered devices against the
// capabilities each task type needs and picks the best.
type CapabilityBasedAssignmentStrategy struct {
	required map[taskmanager.Type][]string
}

// defaultCandidates keeps the demo working when no devices have
// registered capabilities yet.
var defaultCandidates = []string{"default_device", "coherent_001", "radar_001"}

// NewCapabilityBasedAssignmentStrategy builds the strategy with the
// standard task-type capability table.
func NewCapabilityBasedAssignmentStrategy() *CapabilityBasedAssignmentStrategy {
	return &CapabilityBasedAssignmentStrategy{
		required: map[taskmanager.Type][]string{
			taskmanager.TrackTarget:     {"radar", "lidar", "camera", "gimbal_control"},
			taskmanager.ScanArea:        {"radar", "lidar", "camera"},
			taskmanager.PointGimbal:     {"gimbal_control", "coherent"},
			taskmanager.CalibrateSensor: {"calibration"},
			taskmanager.MonitorStatus:   {},
		},
	}
}

func (s *CapabilityBasedAssignmentStrategy) Name() string {
	return "CapabilityBasedAssignmentStrategy"
}

// RequiredCapabilities returns the capability set a task type needs.
func (s *CapabilityBasedAssignmentStrategy) RequiredCapabilities(t taskmanager.Type) []string {
	return append([]string(nil), s.required[t]...)
}

func (s *CapabilityBasedAssignmentStrategy) SelectForTarget(t *fusion.Target, tm *taskmanager.Manager, ctx *fusion.Context) string {
	return s.SelectForTask(t, taskmanager.TrackTarget, tm, ctx)
}

func (s *CapabilityBasedAssignmentStrategy) SelectForTask(t *fusion.Target, _ taskmanager.Type, tm *taskmanager.Manager, ctx *fusion.Context) string {
	candidates := tm.RegisteredDevices()
	if len(candidates) == 0 {
		candidates = defaultCandidates
	}

	best := ""
	bestScore := 0.0
	for _, id := range candidates {
		if score := s.Suitability(id, t, tm, ctx); score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

// Suitability scores 0.5 for any sensing capability, +0.5 for any gimbal
// capability, and +0.2 when a coherent device meets a high-confidence
// target, capped at 1. Devices with no registered capabilities score 0.
func (s *CapabilityBasedAssignmentStrategy) Suitability(deviceID string, t *fusion.Target, tm *taskmanager.Manager, _ *fusion.Context) float64 {
	caps := tm.CapabilitiesOf(deviceID)
	if len(caps) == 0 {
		return 0.0
	}

	hasSensor, hasGimbal, hasCoherent := false, false, false
	for _, c := range caps {
		switch c {
		case "radar", "lidar", "camera":
			hasSensor = true
		case "gimbal_control":
			hasGimbal = true
		case "coherent":
			hasGimbal = true
			hasCoherent = true
		}
	}

	score := 0.0
	if hasSensor {
		score += 0.5
	}
	if hasGimbal {
		score += 0.5
	}
	if hasCoherent && t.Confidence > 0.8 {
		score += 0.2
	}
	return math.Min(1.0, score)
}
