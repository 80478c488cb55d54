package tracking

import (
	"time"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/statemachine"
)

// Algorithm states.
const (
	StateIdle      = "IDLE"
	StateAcquiring = "ACQUIRING"
	StateTracking  = "TRACKING"
	StateLost      = "LOST"
)

func (a *Algorithm) buildStateMachine() *statemachine.Machine[*fusion.Context] {
	m := statemachine.New[*fusion.Context]()

	m.AddState(&statemachine.State[*fusion.Context]{
		Name: StateIdle,
		OnEnter: func(ctx *fusion.Context) {
			a.logger.Info("entered IDLE state", "component", a.Name())
			ctx.Set(keyScanning, true)
		},
		OnUpdate: a.scanForTargets,
	})

	m.AddState(&statemachine.State[*fusion.Context]{
		Name: StateAcquiring,
		OnEnter: func(ctx *fusion.Context) {
			a.logger.Info("entered ACQUIRING state", "component", a.Name())
			ctx.Set(keyAcquisitionStart, a.now())
		},
		OnUpdate: a.evaluateCandidates,
	})

	m.AddState(&statemachine.State[*fusion.Context]{
		Name: StateTracking,
		OnEnter: func(ctx *fusion.Context) {
			a.logger.Info("entered TRACKING state", "component", a.Name())
			a.pointGimbalAtBest(ctx)
		},
		OnUpdate: a.updateTracking,
	})

	m.AddState(&statemachine.State[*fusion.Context]{
		Name: StateLost,
		OnEnter: func(ctx *fusion.Context) {
			a.logger.Info("entered LOST state", "component", a.Name())
			ctx.Set(keyLostStart, a.now())
		},
		OnUpdate: a.searchForLostTargets,
	})

	m.SetInitial(StateIdle)

	type tr = statemachine.Transition[*fusion.Context]
	m.AddTransition(tr{From: StateIdle, To: StateAcquiring, Trigger: "detection"})
	m.AddTransition(tr{From: StateAcquiring, To: StateTracking, Trigger: "confirmed"})
	m.AddTransition(tr{From: StateAcquiring, To: StateIdle, Trigger: "false_positive"})
	m.AddTransition(tr{From: StateTracking, To: StateLost, Trigger: "lost"})
	m.AddTransition(tr{From: StateLost, To: StateTracking, Trigger: "reacquired"})
	m.AddTransition(tr{From: StateLost, To: StateIdle, Trigger: "timeout"})

	// Reset returns to IDLE from every state, including IDLE itself.
	m.AddTransition(tr{From: StateIdle, To: StateIdle, Trigger: "reset"})
	m.AddTransition(tr{From: StateAcquiring, To: StateIdle, Trigger: "reset"})
	m.AddTransition(tr{From: StateTracking, To: StateIdle, Trigger: "reset"})
	m.AddTransition(tr{From: StateLost, To: StateIdle, Trigger: "reset"})

	return m
}

// scanForTargets (IDLE) promotes to ACQUIRING as soon as any live
// detection exists.
func (a *Algorithm) scanForTargets(ctx *fusion.Context) {
	count, _ := fusion.Value[int](ctx, keyDetectionCount)
	if count > 0 {
		a.fire(ctx, "detection")
	}
}

// evaluateCandidates (ACQUIRING) reinforces candidates seen by enough
// sensors and fires confirmed when one clears the confidence bar.
func (a *Algorithm) evaluateCandidates(ctx *fusion.Context) {
	targets := fusion.Targets(ctx)

	confirmed := false
	for _, t := range targets {
		if t.Confidence > a.params.AcquisitionThreshold &&
			len(t.SensorDetections) >= a.params.MinSensorConsensus {
			t.Confidence = minf(1.0, t.Confidence+acquiringConfidenceStep)
			if t.Confidence > a.params.MinConfidence {
				confirmed = true
			}
		}
	}
	ctx.Set(fusion.TargetsKey, targets)

	if confirmed {
		a.fire(ctx, "confirmed")
	}
}

// updateTracking (TRACKING) decays silent targets, keeps pointing the
// gimbal at live ones, and fires lost when none remain credible.
func (a *Algorithm) updateTracking(ctx *fusion.Context) {
	targets := fusion.Targets(ctx)
	now := a.now()

	hasValid := false
	for _, t := range targets {
		if now.Sub(t.LastUpdate) > a.params.TargetTimeout {
			t.Confidence *= staleDecayFactor
		}
		if t.Confidence > a.params.LostThreshold {
			hasValid = true
			a.emitGimbalCommand(ctx, t)
		}
	}
	ctx.Set(fusion.TargetsKey, targets)

	if !hasValid {
		a.fire(ctx, "lost")
	}
}

// searchForLostTargets (LOST) gives reacquisition a bounded window, then
// fires timeout back to IDLE.
func (a *Algorithm) searchForLostTargets(ctx *fusion.Context) {
	start, ok := fusion.Value[time.Time](ctx, keyLostStart)
	if !ok {
		return
	}
	if a.now().Sub(start) > a.params.LostTimeout {
		a.fire(ctx, "timeout")
	}
}

// pointGimbalAtBest issues one gimbal command for the best current
// target, consulting the prioritizer when one is set and falling back to
// highest confidence.
func (a *Algorithm) pointGimbalAtBest(ctx *fusion.Context) {
	targets := fusion.Targets(ctx)
	if len(targets) == 0 {
		return
	}

	list := make([]*fusion.Target, 0, len(targets))
	for _, t := range targets {
		list = append(list, t)
	}

	var best *fusion.Target
	if p := a.Prioritizer(); p != nil {
		best = p.Best(list, ctx)
	} else {
		for _, t := range list {
			if best == nil || t.Confidence > best.Confidence {
				best = t
			}
		}
	}
	if best != nil {
		a.emitGimbalCommand(ctx, best)
	}
}

// ageTargets drops targets that have been silent for twice the target
// timeout.
func (a *Algorithm) ageTargets(ctx *fusion.Context) {
	targets := fusion.Targets(ctx)
	now := a.now()
	for id, t := range targets {
		if now.Sub(t.LastUpdate) > 2*a.params.TargetTimeout {
			a.logger.Info("removing stale target", "component", a.Name(), "target_id", id)
			delete(targets, id)
		}
	}
	ctx.Set(fusion.TargetsKey, targets)
}

// refreshDetectionCount recounts targets credible enough to count as
// detections; IDLE's scan reads this.
func (a *Algorithm) refreshDetectionCount(ctx *fusion.Context) {
	targets := fusion.Targets(ctx)
	count := 0
	for _, t := range targets {
		if t.Confidence > detectionConfidenceFloor {
			count++
		}
	}
	ctx.Set(keyDetectionCount, count)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
