// Package statemachine provides a small generic state machine shared by
// the fusion algorithm layer and per-task lifecycles.
//
// A Machine[C] holds named states with optional enter/exit/update hooks
// and an ordered list of guarded transitions. TryTransition fires the
// first registered transition matching the current state and trigger whose
// guard passes, running hooks in exit, action, enter order. Unknown
// triggers are a silent no-op. Self-loop transitions are legal and run
// both hooks.
//
// The type parameter C is the context handed to every hook; the algorithm
// machine uses *fusion.Context, the task machine a task-scoped view.
package statemachine
