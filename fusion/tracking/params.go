package tracking

import "time"

// Params tunes the tracking algorithm. DefaultParams matches the fielded
// configuration; tests and operators may override individual fields.
type Params struct {
	// MinConfidence confirms a candidate target (ACQUIRING to TRACKING).
	MinConfidence float64
	// AcquisitionThreshold is the confidence floor for candidates to be
	// reinforced while acquiring.
	AcquisitionThreshold float64
	// LostThreshold is the confidence floor below which tracking gives
	// up on a target.
	LostThreshold float64
	// MinSensorConsensus is how many distinct sensors must have
	// contributed before a candidate can be reinforced.
	MinSensorConsensus int
	// TargetTimeout starts confidence decay for silent targets; targets
	// silent for twice this are dropped.
	TargetTimeout time.Duration

	// PositionNoise is the measurement weight in position smoothing:
	// new = old*(1-PositionNoise) + measurement*PositionNoise. At the
	// default 0.1 a measurement moves the estimate only 10%; the weight
	// is exposed so an operator can re-balance it.
	PositionNoise float64
	// VelocityAlpha is the old-estimate weight in velocity smoothing.
	VelocityAlpha float64

	// GimbalDevice receives pointing commands for confirmed targets.
	GimbalDevice string
	// DefaultDevice is registered at initialize time and receives
	// tracking tasks when no assignment strategy is set.
	DefaultDevice string

	// LostTimeout returns the machine to IDLE after this long in LOST.
	LostTimeout time.Duration
	// StatusInterval paces the fusion-result broadcast.
	StatusInterval time.Duration
}

// DefaultParams returns the reference tuning.
func DefaultParams() Params {
	return Params{
		MinConfidence:        0.7,
		AcquisitionThreshold: 0.5,
		LostThreshold:        0.3,
		MinSensorConsensus:   2,
		TargetTimeout:        10 * time.Second,
		PositionNoise:        0.1,
		VelocityAlpha:        0.8,
		GimbalDevice:         "coherent_001",
		DefaultDevice:        "default_device",
		LostTimeout:          30 * time.Second,
		StatusInterval:       5 * time.Second,
	}
}

// Detection association and clustering constants.
const (
	// radarRCSFloor filters small radar returns.
	radarRCSFloor = 0.1
	// associationRadius is the nearest-target match distance in meters.
	associationRadius = 5.0
	// radarConfidenceBoost / lidarConfidenceBoost are the per-update
	// confidence contributions of each sensor type.
	radarConfidenceBoost = 0.8
	lidarConfidenceBoost = 0.6
	// clusterLinkDistance links lidar points into connected components.
	clusterLinkDistance = 1.0
	// clusterMinPoints keeps a component as a cluster candidate;
	// clusterObjectPoints is the size at which it becomes an object.
	clusterMinPoints    = 5
	clusterObjectPoints = 10
	// acquiringConfidenceStep reinforces consensus candidates per tick.
	acquiringConfidenceStep = 0.1
	// staleDecayFactor shrinks confidence of timed-out targets per tick.
	staleDecayFactor = 0.9
	// nodeLossDecayFactor shrinks confidence of targets that relied on a
	// node that timed out.
	nodeLossDecayFactor = 0.8
	// detectionConfidenceFloor counts a target as a live detection.
	detectionConfidenceFloor = 0.3
)

// Context-store keys private to this algorithm.
const (
	keyDetectionCount   = "detection_count"
	keyAcquisitionStart = "acquisition_start"
	keyLostStart        = "lost_start"
	keyScanning         = "scanning"
)
