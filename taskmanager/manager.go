package taskmanager

import (
	"fmt"
	"sync"
	"time"
)

const (
	cleanupEvery    = 5 * time.Minute
	terminalMaxAge  = time.Hour
	clampProgressLo = 0.0
	clampProgressHi = 100.0
)

// Stats is a point-in-time summary of the task population.
type Stats struct {
	Total                  int
	Active                 int
	Completed              int
	Failed                 int
	RegisteredDevices      int
	TargetsWithAssignments int
}

// Manager owns all tasks and the target/device assignment indices. Safe
// for concurrent use.
type Manager struct {
	mu sync.RWMutex

	tasks         map[string]*record
	byTarget      map[string][]string
	byDevice      map[string][]string
	primaryDevice map[string]string
	capabilities  map[string][]string

	nextID      uint64
	lastCleanup time.Time
	now         func() time.Time
}

// New returns an empty manager.
func New() *Manager {
	m := &Manager{
		tasks:         make(map[string]*record),
		byTarget:      make(map[string][]string),
		byDevice:      make(map[string][]string),
		primaryDevice: make(map[string]string),
		capabilities:  make(map[string][]string),
		nextID:        1,
		now:           time.Now,
	}
	m.lastCleanup = m.now()
	return m
}

// SetClock replaces the time source and restarts the cleanup schedule
// from the new clock's current time. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.lastCleanup = now()
	m.mu.Unlock()
}

// Create allocates the next task id for a target. The task starts in
// CREATED with no device.
func (m *Manager) Create(targetID string, typ Type, priority Priority) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("task_%d", m.nextID)
	m.nextID++

	m.tasks[id] = &record{
		task: Task{
			ID:        id,
			TargetID:  targetID,
			Type:      typ,
			Priority:  priority,
			Status:    StatusCreated,
			CreatedAt: m.now(),
			ExecState: ExecInitializing,
		},
		params:  make(map[string]any),
		machine: newExecMachine(),
	}
	m.byTarget[targetID] = append(m.byTarget[targetID], id)
	return id
}

// Assign binds a task to a device. A task already assigned elsewhere is
// scrubbed from the previous device's index first. The target's primary
// device follows the most recent assignment. Returns false for an unknown
// task.
func (m *Manager) Assign(taskID, deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}

	if prev := rec.task.DeviceID; prev != "" && prev != deviceID {
		m.scrubIndex(m.byDevice, prev, taskID)
	}
	if rec.task.DeviceID != deviceID {
		m.byDevice[deviceID] = append(m.byDevice[deviceID], taskID)
	}

	rec.task.DeviceID = deviceID
	if rec.task.Status == StatusCreated {
		rec.task.Status = StatusAssigned
		rec.task.AssignedAt = m.now()
	}
	m.primaryDevice[rec.task.TargetID] = deviceID
	return true
}

// Get returns a snapshot of a task.
func (m *Manager) Get(taskID string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return rec.task, true
}

// ByTarget returns snapshots of every task bound to a target.
func (m *Manager) ByTarget(targetID string) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byTarget[targetID])
}

// ByDevice returns snapshots of every task assigned to a device.
func (m *Manager) ByDevice(deviceID string) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byDevice[deviceID])
}

// PrimaryDeviceOf returns the device most recently assigned any of the
// target's tasks.
func (m *Manager) PrimaryDeviceOf(targetID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.primaryDevice[targetID]
	return d, ok
}

// RegisterCapabilities records what a device can do. Capabilities persist
// across ClearAll; they describe hardware, not workload.
func (m *Manager) RegisterCapabilities(deviceID string, caps []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilities[deviceID] = append([]string(nil), caps...)
}

// CapabilitiesOf returns a device's registered capabilities.
func (m *Manager) CapabilitiesOf(deviceID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.capabilities[deviceID]...)
}

// RegisteredDevices returns every device id with registered capabilities.
func (m *Manager) RegisteredDevices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.capabilities))
	for id := range m.capabilities {
		out = append(out, id)
	}
	return out
}

// SetStatus moves a task through its lifecycle. First entry to ACTIVE
// stamps StartedAt once; terminal statuses stamp CompletedAt, and
// COMPLETED alone forces progress to 100. Returns false for an unknown
// task.
func (m *Manager) SetStatus(taskID string, status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	rec.task.Status = status
	now := m.now()
	switch {
	case status == StatusActive:
		if rec.task.StartedAt.IsZero() {
			rec.task.StartedAt = now
		}
	case status.Terminal():
		rec.task.CompletedAt = now
		if status == StatusCompleted {
			rec.task.Progress = clampProgressHi
		}
	}
	return true
}

// SetProgress stores a progress percentage, clamped to [0,100].
func (m *Manager) SetProgress(taskID string, pct float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	if pct < clampProgressLo {
		pct = clampProgressLo
	}
	if pct > clampProgressHi {
		pct = clampProgressHi
	}
	rec.task.Progress = pct
	return true
}

// SetStatusMessage attaches a human-readable note to a task.
func (m *Manager) SetStatusMessage(taskID, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	rec.task.StatusMessage = msg
	return true
}

// SetParameter stores an opaque task parameter.
func (m *Manager) SetParameter(taskID, key string, value any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	rec.params[key] = value
	return true
}

// Parameter retrieves a task parameter. Absent keys and unknown tasks
// both report false.
func (m *Manager) Parameter(taskID, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	v, ok := rec.params[key]
	return v, ok
}

// Cancel marks a task CANCELLED. Terminal tasks are left untouched.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok || rec.task.Status.Terminal() {
		return false
	}
	rec.task.Status = StatusCancelled
	rec.task.CompletedAt = m.now()
	return true
}

// FireTaskTrigger drives a task's execution state machine. The algorithm
// context rides along to the hooks.
func (m *Manager) FireTaskTrigger(taskID string, ctx any, trigger string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	fired := rec.machine.TryTransition(HookContext{Ctx: ctx, TaskID: taskID}, trigger)
	if fired {
		rec.task.ExecState = rec.machine.Current()
	}
	return fired
}

// ExecStateOf returns a task's execution machine state.
func (m *Manager) ExecStateOf(taskID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return "", false
	}
	return rec.machine.Current(), true
}

// Remove deletes a task and scrubs every back-reference. The target's
// primary device is dropped when its last task goes.
func (m *Manager) Remove(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(taskID)
}

func (m *Manager) removeLocked(taskID string) bool {
	rec, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	targetID := rec.task.TargetID
	deviceID := rec.task.DeviceID

	m.scrubIndex(m.byTarget, targetID, taskID)
	if _, remains := m.byTarget[targetID]; !remains {
		delete(m.primaryDevice, targetID)
	}
	if deviceID != "" {
		m.scrubIndex(m.byDevice, deviceID, taskID)
	}
	delete(m.tasks, taskID)
	return true
}

// Tick runs the execution state machine of every ACTIVE task under the
// read lock, then, if five minutes of wall progress have passed since the
// last cleanup, takes the write lock and removes terminal tasks completed
// more than an hour ago. Cleanup never runs while the read lock is held.
func (m *Manager) Tick(ctx any) {
	m.mu.RLock()
	for id, rec := range m.tasks {
		if rec.task.Active() {
			rec.machine.Update(HookContext{Ctx: ctx, TaskID: id})
		}
	}
	cleanupDue := m.now().Sub(m.lastCleanup) > cleanupEvery
	m.mu.RUnlock()

	if cleanupDue {
		m.cleanup()
	}
}

func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cutoff := now.Add(-terminalMaxAge)

	var stale []string
	for id, rec := range m.tasks {
		if rec.task.Status.Terminal() && !rec.task.CompletedAt.IsZero() && rec.task.CompletedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		m.removeLocked(id)
	}
	m.lastCleanup = now
}

// ActiveTasks returns snapshots of every ACTIVE task.
func (m *Manager) ActiveTasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Task
	for _, rec := range m.tasks {
		if rec.task.Active() {
			out = append(out, rec.task)
		}
	}
	return out
}

// Statistics summarizes the current task population.
func (m *Manager) Statistics() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Total:                  len(m.tasks),
		RegisteredDevices:      len(m.capabilities),
		TargetsWithAssignments: len(m.primaryDevice),
	}
	for _, rec := range m.tasks {
		switch rec.task.Status {
		case StatusActive:
			s.Active++
		case StatusCompleted:
			s.Completed++
		case StatusFailed, StatusCancelled:
			s.Failed++
		}
	}
	return s
}

// ClearAll drops every task and assignment. Device capabilities persist.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]*record)
	m.byTarget = make(map[string][]string)
	m.byDevice = make(map[string][]string)
	m.primaryDevice = make(map[string]string)
}

// scrubIndex removes one id from a bucket, dropping the bucket when it
// empties.
func (m *Manager) scrubIndex(index map[string][]string, key, taskID string) {
	list := index[key]
	for i, id := range list {
		if id == taskID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(index, key)
	} else {
		index[key] = list
	}
}

func (m *Manager) collect(ids []string) []Task {
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.tasks[id]; ok {
			out = append(out, rec.task)
		}
	}
	return out
}
