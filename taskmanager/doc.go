// Package taskmanager maintains the target/device/task assignment index
// for the fusion layer.
//
// A Task binds one target to (after assignment) one device and carries a
// small state machine for device-side execution. The manager keeps five
// maps consistent under a single RWMutex: the task store, the two reverse
// indices (by target, by device), the per-target primary device, and the
// persistent device capability table. Reassigning a task scrubs the old
// device's index entry before appending the new one; removing a task
// scrubs every back-reference and drops empty buckets.
//
// Callers get value snapshots of tasks, never aliases into the store; all
// mutation goes through manager methods. Task state hooks run during Tick
// while the read lock is held and must not call back into the manager.
package taskmanager
