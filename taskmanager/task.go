package taskmanager

import (
	"time"

	"github.com/oraqon/dp-aero-L2/statemachine"
)

// Type classifies what a task asks a device to do.
type Type int

const (
	TrackTarget Type = iota
	ScanArea
	PointGimbal
	CalibrateSensor
	MonitorStatus
)

func (t Type) String() string {
	switch t {
	case TrackTarget:
		return "TRACK_TARGET"
	case ScanArea:
		return "SCAN_AREA"
	case PointGimbal:
		return "POINT_GIMBAL"
	case CalibrateSensor:
		return "CALIBRATE_SENSOR"
	case MonitorStatus:
		return "MONITOR_STATUS"
	default:
		return "UNKNOWN"
	}
}

// Priority orders tasks for strategies. It has no scheduling effect inside
// the manager itself.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 8
	PriorityCritical Priority = 10
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Status is the task lifecycle state.
type Status int

const (
	StatusCreated Status = iota
	StatusAssigned
	StatusActive
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusAssigned:
		return "ASSIGNED"
	case StatusActive:
		return "ACTIVE"
	case StatusPaused:
		return "PAUSED"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status ends the task lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is a value snapshot of one unit of work. Snapshots are safe to
// retain; they do not alias manager state.
type Task struct {
	ID       string
	TargetID string
	DeviceID string
	Type     Type
	Priority Priority
	Status   Status

	CreatedAt   time.Time
	AssignedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Progress      float64 // 0..100
	StatusMessage string
	ExecState     string // per-task state machine state
}

// Active reports whether the task is currently executing.
func (t Task) Active() bool { return t.Status == StatusActive }

// Age is the time since creation.
func (t Task) Age(now time.Time) time.Duration { return now.Sub(t.CreatedAt) }

// ExecutionTime is the time spent between start and completion (or now
// for a still-running task). Zero before the task first goes active.
func (t Task) ExecutionTime(now time.Time) time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !t.CompletedAt.IsZero() {
		end = t.CompletedAt
	}
	return end.Sub(t.StartedAt)
}

// Per-task execution states.
const (
	ExecInitializing = "INITIALIZING"
	ExecExecuting    = "EXECUTING"
	ExecCompleting   = "COMPLETING"
	ExecError        = "ERROR"
)

// Per-task execution triggers.
const (
	TriggerStart    = "start"
	TriggerComplete = "complete"
	TriggerError    = "error"
	TriggerRetry    = "retry"
)

// HookContext is what a per-task state hook receives: the algorithm
// context (opaque at this layer) plus the task id.
type HookContext struct {
	Ctx    any
	TaskID string
}

// record is the stored form of a task: the snapshot fields plus its
// private state machine and parameter bag.
type record struct {
	task    Task
	params  map[string]any
	machine *statemachine.Machine[HookContext]
}

// newExecMachine builds the default per-task state machine:
// INITIALIZING -start-> EXECUTING -complete-> COMPLETING, error from the
// two live states, retry back out of ERROR.
func newExecMachine() *statemachine.Machine[HookContext] {
	m := statemachine.New[HookContext]()
	m.AddState(&statemachine.State[HookContext]{Name: ExecInitializing})
	m.AddState(&statemachine.State[HookContext]{Name: ExecExecuting})
	m.AddState(&statemachine.State[HookContext]{Name: ExecCompleting})
	m.AddState(&statemachine.State[HookContext]{Name: ExecError})
	m.SetInitial(ExecInitializing)

	m.AddTransition(statemachine.Transition[HookContext]{From: ExecInitializing, To: ExecExecuting, Trigger: TriggerStart})
	m.AddTransition(statemachine.Transition[HookContext]{From: ExecExecuting, To: ExecCompleting, Trigger: TriggerComplete})
	m.AddTransition(statemachine.Transition[HookContext]{From: ExecInitializing, To: ExecError, Trigger: TriggerError})
	m.AddTransition(statemachine.Transition[HookContext]{From: ExecExecuting, To: ExecError, Trigger: TriggerError})
	m.AddTransition(statemachine.Transition[HookContext]{From: ExecError, To: ExecInitializing, Trigger: TriggerRetry})
	return m
}
