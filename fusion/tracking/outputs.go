package tracking

import (
	"fmt"
	"math"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/message"
)

// emitGimbalCommand queues a POINT_GIMBAL command steering the coherent
// device at a target.
func (a *Algorithm) emitGimbalCommand(ctx *fusion.Context, t *fusion.Target) {
	r := t.Range()
	if r == 0 {
		return
	}
	theta := math.Atan2(t.Y, t.X)
	phi := math.Asin(t.Z / r)

	nowMS := a.now().UnixMilli()
	ctx.AddOutput(&message.Outbound{
		MessageID:    idWithEpoch("gimbal", nowMS),
		TargetNodeID: a.params.GimbalDevice,
		TimestampMS:  nowMS,
		ControlCommand: &message.ControlCommand{
			CommandType:    message.CmdPointGimbal,
			TargetPosition: &message.GimbalPosition{Theta: theta, Phi: phi},
		},
	})

	a.logger.Info("tasking coherent device",
		"component", a.Name(),
		"device_id", a.params.GimbalDevice,
		"target_id", t.ID,
		"theta", theta,
		"phi", phi)
}

// broadcastStatus emits a fusion result at the configured cadence.
func (a *Algorithm) broadcastStatus(ctx *fusion.Context) {
	now := a.now()
	if !a.lastStatus.IsZero() && now.Sub(a.lastStatus) <= a.params.StatusInterval {
		return
	}
	a.lastStatus = now

	targets := fusion.Targets(ctx)
	nowMS := now.UnixMilli()
	ctx.AddOutput(&message.Outbound{
		MessageID:   idWithEpoch("fusion_result", nowMS),
		TimestampMS: nowMS,
		FusionResult: &message.FusionResult{
			AlgorithmName: a.Name(),
			ResultType:    "target_tracks",
			Confidence:    overallConfidence(targets),
			ResultData:    fmt.Sprintf("Targets: %d, State: %s", len(targets), ctx.StateName),
		},
	})
}

// overallConfidence is the mean target confidence, zero when empty.
func overallConfidence(targets map[string]*fusion.Target) float64 {
	if len(targets) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range targets {
		total += t.Confidence
	}
	return total / float64(len(targets))
}

func idWithEpoch(prefix string, epochMS int64) string {
	return fmt.Sprintf("%s_%d", prefix, epochMS)
}
