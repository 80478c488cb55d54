package tracking

import (
	"log/slog"
	"time"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/fusion/strategy"
	"github.com/oraqon/dp-aero-L2/message"
	"github.com/oraqon/dp-aero-L2/statemachine"
	"github.com/oraqon/dp-aero-L2/taskmanager"
)

// AlgorithmName is the registry key for this algorithm.
const AlgorithmName = "TargetTrackingAlgorithm"

func init() {
	fusion.DefaultRegistry.Register(func() fusion.Algorithm { return New() })
}

// Algorithm is the reference multi-sensor tracking algorithm. It owns its
// task manager and composes swappable strategies via strategy.Base.
type Algorithm struct {
	strategy.Base

	params  Params
	machine *statemachine.Machine[*fusion.Context]
	tasks   *taskmanager.Manager
	logger  *slog.Logger
	now     func() time.Time

	// lastStatus paces the fusion-result broadcast; instance-scoped so
	// two algorithms in one process do not share cadence.
	lastStatus time.Time
}

// Option configures the algorithm.
type Option func(*Algorithm)

// WithParams overrides the default tuning.
func WithParams(p Params) Option {
	return func(a *Algorithm) { a.params = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Algorithm) { a.logger = l }
}

// WithClock replaces the time source. Test hook; scenario tests inject a
// fake clock to drive timeout decay without sleeping.
func WithClock(now func() time.Time) Option {
	return func(a *Algorithm) { a.now = now }
}

// WithTaskManager supplies a shared task manager instead of an owned one.
func WithTaskManager(tm *taskmanager.Manager) Option {
	return func(a *Algorithm) { a.tasks = tm }
}

// New constructs the algorithm with default params, a fresh task manager
// and the default logger.
func New(opts ...Option) *Algorithm {
	a := &Algorithm{
		params: DefaultParams(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tasks == nil {
		a.tasks = taskmanager.New()
	}
	return a
}

// Name implements fusion.Algorithm.
func (a *Algorithm) Name() string { return AlgorithmName }

// Version implements fusion.Algorithm.
func (a *Algorithm) Version() string { return "1.0.0" }

// Description implements fusion.Algorithm.
func (a *Algorithm) Description() string {
	return "Multi-sensor target tracking algorithm with state machine"
}

// TaskManager exposes the assignment index for drivers and tests.
func (a *Algorithm) TaskManager() *taskmanager.Manager { return a.tasks }

// Params returns the active tuning.
func (a *Algorithm) Params() Params { return a.params }

// Initialize assembles the state machine, seeds context state and
// registers the default device's capabilities.
func (a *Algorithm) Initialize(ctx *fusion.Context) error {
	a.machine = a.buildStateMachine()

	ctx.Set(fusion.TargetsKey, map[string]*fusion.Target{})
	ctx.Set(keyDetectionCount, 0)

	a.tasks.RegisterCapabilities(a.params.DefaultDevice,
		[]string{"radar", "lidar", "camera", "gimbal_control"})

	ctx.StateName = a.machine.Initial()
	a.machine.EnterInitial(ctx)

	a.logger.Info("algorithm initialized",
		"component", a.Name(),
		"state", ctx.StateName)
	return nil
}

// ProcessInbound records the message and dispatches sensor data and
// capability advertisements.
func (a *Algorithm) ProcessInbound(ctx *fusion.Context, msg *message.Inbound) error {
	ctx.RecordInbound(msg)

	nodeID := msg.Sender.NodeID
	switch msg.Case() {
	case message.InboundSensorData:
		a.processSensorData(ctx, nodeID, msg.SensorData)
	case message.InboundCapability:
		a.processCapability(nodeID, msg.Capability)
	}

	// Detection bookkeeping happens here, not a state transition: the
	// IDLE scan on the next update observes the count and fires.
	a.refreshDetectionCount(ctx)
	return nil
}

// Update runs one periodic tick: the current state's behavior, active
// task state machines, target aging, detection bookkeeping and the
// paced status broadcast.
func (a *Algorithm) Update(ctx *fusion.Context) error {
	a.machine.Update(ctx)
	a.tasks.Tick(ctx)
	a.ageTargets(ctx)
	a.refreshDetectionCount(ctx)
	a.broadcastStatus(ctx)
	return nil
}

// HandleTrigger dispatches named events. reset and node_timeout have
// domain side effects; target_detected/target_lost alias their state
// machine triggers; anything else goes straight to the machine (a silent
// no-op when no transition matches).
func (a *Algorithm) HandleTrigger(ctx *fusion.Context, name string, data any) error {
	switch name {
	case fusion.TriggerReset:
		a.logger.Info("resetting algorithm", "component", a.Name())
		ctx.Set(fusion.TargetsKey, map[string]*fusion.Target{})
		ctx.Set(keyDetectionCount, 0)
		a.fire(ctx, "reset")

	case fusion.TriggerNodeTimeout:
		nodeID, ok := data.(string)
		if !ok {
			a.logger.Error("invalid trigger data for node_timeout", "component", a.Name())
			return nil
		}
		a.logger.Warn("node timeout", "component", a.Name(), "node_id", nodeID)
		a.handleNodeTimeout(ctx, nodeID)

	case "target_detected":
		a.fire(ctx, "detection")

	case "target_lost":
		a.fire(ctx, "lost")

	default:
		a.fire(ctx, name)
	}
	return nil
}

// Shutdown broadcasts a SHUTDOWN system command so nodes stop expecting
// this instance.
func (a *Algorithm) Shutdown(ctx *fusion.Context) error {
	nowMS := a.now().UnixMilli()
	ctx.AddOutput(&message.Outbound{
		MessageID:     idWithEpoch("shutdown", nowMS),
		TimestampMS:   nowMS,
		SystemCommand: &message.SystemCommand{CommandType: message.SysShutdown},
	})
	a.logger.Info("algorithm shutdown", "component", a.Name())
	return nil
}

// fire drives the state machine and mirrors the resulting state onto the
// context for observers.
func (a *Algorithm) fire(ctx *fusion.Context, trigger string) bool {
	fired := a.machine.TryTransition(ctx, trigger)
	if fired {
		ctx.StateName = a.machine.Current()
	}
	return fired
}

// handleNodeTimeout decays and unlinks every target the lost node was
// contributing to.
func (a *Algorithm) handleNodeTimeout(ctx *fusion.Context, nodeID string) {
	targets := fusion.Targets(ctx)
	for _, t := range targets {
		if _, ok := t.SensorDetections[nodeID]; ok {
			t.Confidence *= nodeLossDecayFactor
			delete(t.SensorDetections, nodeID)
		}
	}
	ctx.Set(fusion.TargetsKey, targets)
	ctx.ForgetNode(nodeID)
}
