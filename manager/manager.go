package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oraqon/dp-aero-L2/bus"
	"github.com/oraqon/dp-aero-L2/errors"
	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/health"
	"github.com/oraqon/dp-aero-L2/message"
	"github.com/oraqon/dp-aero-L2/metric"
	"github.com/oraqon/dp-aero-L2/noderegistry"
	"github.com/oraqon/dp-aero-L2/pkg/buffer"
	"github.com/oraqon/dp-aero-L2/pkg/cache"
	"github.com/oraqon/dp-aero-L2/pkg/worker"
)

// State is the manager lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateReady
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Stats is a read-only snapshot of manager activity.
type Stats struct {
	MessagesProcessed     uint64
	MessagesSent          uint64
	MessagesDropped       uint64
	ActiveNodes           int
	Uptime                time.Duration
	CurrentAlgorithmState string
}

// Manager coordinates the L2 tier. Construct with New, arm with
// SetAlgorithm, then Start.
type Manager struct {
	cfg    Config
	bus    bus.Bus
	logger *slog.Logger

	// Lock order: algMu before ctxMu; both released before publishing.
	algMu     sync.RWMutex
	algorithm fusion.Algorithm
	ctxMu     sync.Mutex
	fctx      *fusion.Context

	registry *noderegistry.Registry

	queue     buffer.Buffer[*message.Inbound]
	queueMu   sync.Mutex
	queueCond *sync.Cond

	dedupe    cache.Cache[struct{}]
	publisher *worker.Pool[*message.Outbound]

	state   atomic.Int32
	running atomic.Bool
	// subscriptionRunning tracks the consume loop independently so
	// health can distinguish a dead subscription from a stopped manager.
	subscriptionRunning atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	messagesProcessed atomic.Uint64
	messagesSent      atomic.Uint64
	messagesDropped   atomic.Uint64
	// heartbeatSeq is instance-scoped: two managers in one process emit
	// overlapping L2_<n> ids by design.
	heartbeatSeq atomic.Uint64

	startTime time.Time
	now       func() time.Time

	metrics *managerMetrics
	monitor *health.Monitor
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetricsRegistry mirrors manager counters into Prometheus.
func WithMetricsRegistry(reg *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		mm, err := newManagerMetrics(reg)
		if err != nil {
			m.logger.Error("failed to register manager metrics", "component", "FusionManager", "error", err)
			return
		}
		m.metrics = mm
	}
}

// WithHealthMonitor reports bus/queue/algorithm health into a monitor.
func WithHealthMonitor(h *health.Monitor) Option {
	return func(m *Manager) { m.monitor = h }
}

// WithClock replaces the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New builds a manager over a bus. The returned manager is in CREATED
// until an algorithm is set.
func New(cfg Config, b bus.Bus, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		bus:      b,
		logger:   slog.Default(),
		fctx:     fusion.NewContext(),
		registry: noderegistry.New(),
		now:      time.Now,
	}
	m.fctx.UpdateInterval = cfg.AlgorithmUpdateInterval
	m.queueCond = sync.NewCond(&m.queueMu)
	m.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(m)
	}

	q, err := buffer.NewCircularBuffer[*message.Inbound](cfg.MessageQueueSize,
		buffer.WithOverflowPolicy[*message.Inbound](buffer.DropOldest),
		buffer.WithDropCallback[*message.Inbound](func(dropped *message.Inbound) {
			m.messagesDropped.Add(1)
			if m.metrics != nil {
				m.metrics.dropped.Inc()
			}
			m.logger.Warn("inbound queue full, dropping oldest message",
				"component", "FusionManager",
				"message_id", dropped.MessageID)
		}),
	)
	if err != nil {
		return nil, err
	}
	m.queue = q

	if cfg.DedupeWindow > 0 {
		d, err := cache.NewTTL[struct{}](context.Background(), cfg.DedupeWindow, cfg.DedupeWindow)
		if err != nil {
			return nil, err
		}
		m.dedupe = d
	} else {
		m.dedupe = cache.NewNoop[struct{}]()
	}

	m.publisher = worker.NewPool[*message.Outbound](1, cfg.MessageQueueSize, m.publishOutbound)
	return m, nil
}

// State returns the lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// NodeRegistry exposes the liveness map for read-only observers.
func (m *Manager) NodeRegistry() *noderegistry.Registry { return m.registry }

// SetAlgorithm installs the fusion algorithm. Rejected while running.
func (m *Manager) SetAlgorithm(alg fusion.Algorithm) error {
	if m.State() == StateRunning {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "FusionManager", "SetAlgorithm",
			"cannot change algorithm while running")
	}
	m.algMu.Lock()
	m.algorithm = alg
	m.algMu.Unlock()
	m.state.Store(int32(StateReady))
	return nil
}

// Start initializes the algorithm and spawns the worker, tick, heartbeat,
// monitor and subscription goroutines.
func (m *Manager) Start(ctx context.Context) error {
	switch m.State() {
	case StateRunning:
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "FusionManager", "Start", "already running")
	case StateCreated:
		return errors.WrapInvalid(errors.ErrMissingConfig, "FusionManager", "Start",
			"no algorithm set; call SetAlgorithm before Start")
	case StateStopped:
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "FusionManager", "Start",
			"manager is stopped; construct a new one")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running.Store(true)
	m.startTime = m.now()

	// Initialize under the exclusive algorithm lock plus context lock.
	m.algMu.Lock()
	m.ctxMu.Lock()
	err := m.algorithm.Initialize(m.fctx)
	outputs := m.fctx.DrainOutputs()
	m.ctxMu.Unlock()
	m.algMu.Unlock()
	if err != nil {
		cancel()
		m.running.Store(false)
		return errors.Wrap(err, "FusionManager", "Start", "algorithm initialize")
	}

	if err := m.publisher.Start(runCtx); err != nil {
		cancel()
		m.running.Store(false)
		return errors.Wrap(err, "FusionManager", "Start", "start publisher pool")
	}
	m.submitOutputs(outputs)

	for i := 0; i < m.cfg.WorkerThreads; i++ {
		m.wg.Add(1)
		go m.workerLoop(i)
	}
	m.wg.Add(1)
	go m.tickLoop(runCtx)
	m.wg.Add(1)
	go m.heartbeatLoop(runCtx)
	m.wg.Add(1)
	go m.monitorLoop(runCtx)
	m.wg.Add(1)
	go m.subscriptionLoop(runCtx)

	m.state.Store(int32(StateRunning))
	m.updateHealth("manager", true, "running")
	m.logger.Info("fusion manager started",
		"component", "FusionManager",
		"algorithm", m.algorithmName(),
		"workers", m.cfg.WorkerThreads)
	return nil
}

// Stop halts all goroutines, then runs algorithm shutdown and publishes
// its final outputs directly. Queued inbound messages are discarded. The
// algorithm's shutdown error, if any, is returned after all goroutines
// have joined.
func (m *Manager) Stop() error {
	if m.State() != StateRunning {
		return nil
	}

	m.running.Store(false)
	m.cancel()
	m.queueCond.Broadcast()
	m.wg.Wait()

	if err := m.publisher.Stop(5 * time.Second); err != nil {
		m.logger.Warn("publisher pool stop", "component", "FusionManager", "error", err)
	}

	m.algMu.Lock()
	m.ctxMu.Lock()
	shutdownErr := m.algorithm.Shutdown(m.fctx)
	outputs := m.fctx.DrainOutputs()
	m.ctxMu.Unlock()
	m.algMu.Unlock()

	// The publisher pool is gone; final outputs go straight out.
	for _, out := range outputs {
		if err := m.publishOutbound(context.Background(), out); err != nil {
			m.logger.Error("failed to publish shutdown output",
				"component", "FusionManager", "error", err)
		}
	}

	if err := m.dedupe.Close(); err != nil {
		m.logger.Debug("dedupe cache close", "component", "FusionManager", "error", err)
	}

	m.state.Store(int32(StateStopped))
	m.updateHealth("manager", false, "stopped")
	m.logger.Info("fusion manager stopped", "component", "FusionManager")

	if shutdownErr != nil {
		return errors.Wrap(shutdownErr, "FusionManager", "Stop", "algorithm shutdown")
	}
	return nil
}

// TriggerEvent delivers a named trigger to the algorithm under the usual
// locks and publishes any outputs it produced. Drivers (REPL, monitor)
// use this for reset and similar events.
func (m *Manager) TriggerEvent(name string, data any) {
	outputs, err := m.withAlgorithm(func(alg fusion.Algorithm, ctx *fusion.Context) error {
		return alg.HandleTrigger(ctx, name, data)
	})
	if err != nil {
		m.logger.Error("algorithm trigger error",
			"component", "FusionManager", "trigger", name, "error", err)
	}
	m.submitOutputs(outputs)
}

// Stats returns a read-only activity snapshot.
func (m *Manager) Stats() Stats {
	m.ctxMu.Lock()
	stateName := m.fctx.StateName
	m.ctxMu.Unlock()

	uptime := time.Duration(0)
	if !m.startTime.IsZero() {
		uptime = m.now().Sub(m.startTime)
	}
	active := len(m.registry.Active(m.cfg.NodeTimeout))
	if m.metrics != nil {
		m.metrics.activeNode.Set(float64(active))
	}

	return Stats{
		MessagesProcessed:     m.messagesProcessed.Load(),
		MessagesSent:          m.messagesSent.Load(),
		MessagesDropped:       m.messagesDropped.Load(),
		ActiveNodes:           active,
		Uptime:                uptime,
		CurrentAlgorithmState: stateName,
	}
}

// handleInbound is the subscription callback: decode, dedupe, register
// the sender, then route by payload case. Heartbeats and status updates
// go straight to the registry; everything else is enqueued for the
// workers.
func (m *Manager) handleInbound(payload []byte) {
	msg, err := message.DecodeInbound(payload)
	if err != nil {
		if m.metrics != nil {
			m.metrics.serdeError.Inc()
		}
		m.logger.Error("dropping undecodable inbound payload",
			"component", "FusionManager", "error", err)
		return
	}

	if _, seen := m.dedupe.Get(msg.MessageID); seen {
		if m.metrics != nil {
			m.metrics.duplicates.Inc()
		}
		m.logger.Debug("dropping replayed message",
			"component", "FusionManager", "message_id", msg.MessageID)
		return
	}
	if _, err := m.dedupe.Set(msg.MessageID, struct{}{}); err != nil {
		m.logger.Debug("dedupe cache set", "component", "FusionManager", "error", err)
	}

	// New nodes become visible before their first non-heartbeat message.
	m.registry.Register(noderegistry.Identity{
		NodeID:   msg.Sender.NodeID,
		NodeType: msg.Sender.NodeType,
		Location: msg.Sender.Location,
		Metadata: msg.Sender.Metadata,
	})

	switch msg.Case() {
	case message.InboundNodeStatus:
		m.registry.UpdateStatus(msg.Sender.NodeID, msg.NodeStatus.Status)
	case message.InboundHeartbeat:
		m.registry.TouchHeartbeat(msg.Sender.NodeID)
	default:
		m.enqueue(msg)
	}
}

func (m *Manager) enqueue(msg *message.Inbound) {
	m.queueMu.Lock()
	if err := m.queue.Write(msg); err != nil {
		m.logger.Error("inbound queue write failed",
			"component", "FusionManager", "error", err)
	}
	if m.metrics != nil {
		m.metrics.queueDepth.Set(float64(m.queue.Size()))
	}
	m.queueMu.Unlock()
	m.queueCond.Signal()
}

// workerLoop drains the queue, invoking the algorithm once per message.
func (m *Manager) workerLoop(id int) {
	defer m.wg.Done()

	for {
		m.queueMu.Lock()
		for m.queue.IsEmpty() && m.running.Load() {
			m.queueCond.Wait()
		}
		if !m.running.Load() {
			m.queueMu.Unlock()
			return
		}
		msg, ok := m.queue.Read()
		if m.metrics != nil {
			m.metrics.queueDepth.Set(float64(m.queue.Size()))
		}
		m.queueMu.Unlock()
		if !ok {
			continue
		}

		outputs, err := m.withAlgorithm(func(alg fusion.Algorithm, ctx *fusion.Context) error {
			return alg.ProcessInbound(ctx, msg)
		})
		if err != nil {
			m.logger.Error("algorithm processing error",
				"component", "FusionManager",
				"worker", id,
				"hook", "ProcessInbound",
				"error", err)
		} else {
			m.messagesProcessed.Add(1)
			if m.metrics != nil {
				m.metrics.processed.Inc()
			}
		}
		m.submitOutputs(outputs)
	}
}

// tickLoop drives the algorithm's periodic update.
func (m *Manager) tickLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.AlgorithmUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outputs, err := m.withAlgorithm(func(alg fusion.Algorithm, fctx *fusion.Context) error {
				err := alg.Update(fctx)
				fctx.LastUpdate = m.now()
				return err
			})
			if err != nil {
				m.logger.Error("algorithm update error",
					"component", "FusionManager", "hook", "Update", "error", err)
			}
			m.submitOutputs(outputs)
		}
	}
}

// heartbeatLoop emits the L2 SYNC_TIME heartbeat.
func (m *Manager) heartbeatLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := &message.Outbound{
				MessageID:     fmt.Sprintf("L2_%d", m.heartbeatSeq.Add(1)-1),
				TimestampMS:   m.now().UnixMilli(),
				SystemCommand: &message.SystemCommand{CommandType: message.SysSyncTime},
			}
			if err := m.publishTo(ctx, m.cfg.HeartbeatTopic, hb); err != nil {
				m.logger.Error("failed to send heartbeat",
					"component", "FusionManager", "error", err)
			}
		}
	}
}

// monitorLoop sweeps the registry and notifies the algorithm of evicted
// nodes.
func (m *Manager) monitorLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.NodeTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := m.registry.SweepAndRemove(m.cfg.NodeTimeout)
			for _, nodeID := range evicted {
				m.logger.Warn("node timeout detected",
					"component", "FusionManager", "node_id", nodeID)
				outputs, err := m.withAlgorithm(func(alg fusion.Algorithm, fctx *fusion.Context) error {
					return alg.HandleTrigger(fctx, fusion.TriggerNodeTimeout, nodeID)
				})
				if err != nil {
					m.logger.Error("algorithm trigger error",
						"component", "FusionManager", "hook", "HandleTrigger", "error", err)
				}
				m.submitOutputs(outputs)
			}
		}
	}
}

// subscriptionLoop consumes the L1 topic until cancellation or a fatal
// bus error. It is not restarted on failure; the health monitor surfaces
// the outage.
func (m *Manager) subscriptionLoop(ctx context.Context) {
	defer m.wg.Done()
	m.subscriptionRunning.Store(true)
	defer m.subscriptionRunning.Store(false)

	m.updateHealth("bus", true, "subscribed")
	if err := m.bus.Subscribe(ctx, m.cfg.L1ToL2Topic, m.handleInbound); err != nil {
		m.logger.Error("subscription loop exited",
			"component", "FusionManager",
			"topic", m.cfg.L1ToL2Topic,
			"error", err)
		m.updateHealth("bus", false, "subscription lost")
	}
}

// withAlgorithm runs one algorithm call under the shared algorithm lock
// and the context lock, draining outputs before either is released.
func (m *Manager) withAlgorithm(fn func(alg fusion.Algorithm, ctx *fusion.Context) error) ([]*message.Outbound, error) {
	m.algMu.RLock()
	defer m.algMu.RUnlock()
	if m.algorithm == nil {
		return nil, nil
	}

	m.ctxMu.Lock()
	err := fn(m.algorithm, m.fctx)
	outputs := m.fctx.DrainOutputs()
	m.ctxMu.Unlock()
	return outputs, err
}

// submitOutputs hands drained outputs to the single-worker publisher
// pool; a single worker preserves append order on the wire.
func (m *Manager) submitOutputs(outputs []*message.Outbound) {
	for _, out := range outputs {
		if err := m.publisher.Submit(out); err != nil {
			m.logger.Error("publisher queue rejected output",
				"component", "FusionManager",
				"message_id", out.MessageID,
				"error", err)
		}
	}
}

// publishOutbound is the publisher pool's processor.
func (m *Manager) publishOutbound(ctx context.Context, out *message.Outbound) error {
	return m.publishTo(ctx, m.cfg.L2ToL1Topic, out)
}

// publishTo encodes and publishes one envelope. Publish failures are
// logged by callers, never retried, and do not count as sent.
func (m *Manager) publishTo(ctx context.Context, topic string, out *message.Outbound) error {
	data, err := message.EncodeOutbound(out)
	if err != nil {
		m.logger.Error("dropping unencodable outbound message",
			"component", "FusionManager",
			"message_id", out.MessageID,
			"error", err)
		return err
	}
	if err := m.bus.Publish(ctx, topic, data); err != nil {
		return err
	}
	m.messagesSent.Add(1)
	if m.metrics != nil {
		m.metrics.sent.Inc()
	}
	return nil
}

func (m *Manager) algorithmName() string {
	m.algMu.RLock()
	defer m.algMu.RUnlock()
	if m.algorithm == nil {
		return ""
	}
	return m.algorithm.Name()
}

func (m *Manager) updateHealth(name string, healthy bool, msg string) {
	if m.monitor == nil {
		return
	}
	if healthy {
		m.monitor.UpdateHealthy(name, msg)
	} else {
		m.monitor.UpdateUnhealthy(name, msg)
	}
}
