package fusion

import (
	"time"

	"github.com/oraqon/dp-aero-L2/message"
)

const (
	historySoftCap = 100
	historyKeep    = 50

	// DefaultUpdateInterval is the algorithm tick period when the
	// configuration does not override it.
	DefaultUpdateInterval = 100 * time.Millisecond
)

// Context is the mutable state bag lent to the algorithm for every call.
// Not safe for concurrent use; the fusion manager serializes access.
type Context struct {
	// StateName mirrors the algorithm state machine's current state so
	// observers (stats, REPL) can read it without touching the machine.
	StateName string

	latest  map[string]*message.Inbound
	history map[string][]*message.Inbound
	data    map[string]any

	// LastUpdate is stamped by the manager after each Update call.
	LastUpdate     time.Time
	UpdateInterval time.Duration

	pending []*message.Outbound
}

// NewContext returns an empty context with the default update interval.
func NewContext() *Context {
	return &Context{
		latest:         make(map[string]*message.Inbound),
		history:        make(map[string][]*message.Inbound),
		data:           make(map[string]any),
		UpdateInterval: DefaultUpdateInterval,
	}
}

// RecordInbound stores a message as the node's latest and appends it to
// the node's history. When the history passes the soft cap the oldest
// half is dropped in one splice.
func (c *Context) RecordInbound(m *message.Inbound) {
	if m.Sender == nil {
		return
	}
	id := m.Sender.NodeID
	c.latest[id] = m
	h := append(c.history[id], m)
	if len(h) > historySoftCap {
		h = append([]*message.Inbound(nil), h[len(h)-historyKeep:]...)
	}
	c.history[id] = h
}

// Latest returns the most recent message from a node.
func (c *Context) Latest(nodeID string) (*message.Inbound, bool) {
	m, ok := c.latest[nodeID]
	return m, ok
}

// History returns the retained messages from a node, oldest first.
func (c *Context) History(nodeID string) []*message.Inbound {
	return c.history[nodeID]
}

// ForgetNode drops a node's latest message and history. Called when the
// liveness monitor evicts a node.
func (c *Context) ForgetNode(nodeID string) {
	delete(c.latest, nodeID)
	delete(c.history, nodeID)
}

// Set stores an algorithm-defined value under a key.
func (c *Context) Set(key string, value any) {
	c.data[key] = value
}

// Get returns the raw value stored under a key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Delete removes a key from the store.
func (c *Context) Delete(key string) {
	delete(c.data, key)
}

// Value retrieves a typed entry from the context store. A missing key and
// a type mismatch both report absent; no panic leaks to the caller.
func Value[T any](c *Context, key string) (T, bool) {
	var zero T
	raw, ok := c.data[key]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// AddOutput appends an outbound message for the manager to publish after
// the current algorithm call returns.
func (c *Context) AddOutput(m *message.Outbound) {
	c.pending = append(c.pending, m)
}

// DrainOutputs moves the pending outbound messages out of the context,
// preserving append order. The context's slice is surrendered, not
// copied, so draining is O(1) and the caller owns the result.
func (c *Context) DrainOutputs() []*message.Outbound {
	out := c.pending
	c.pending = nil
	return out
}

// PendingCount reports how many outputs await draining.
func (c *Context) PendingCount() int { return len(c.pending) }
