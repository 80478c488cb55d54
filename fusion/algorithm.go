package fusion

import (
	"sort"
	"sync"

	"github.com/oraqon/dp-aero-L2/errors"
	"github.com/oraqon/dp-aero-L2/message"
)

// Well-known trigger names handled by algorithms before falling through
// to their state machines.
const (
	// TriggerReset clears fusion state and returns the algorithm to its
	// initial state.
	TriggerReset = "reset"
	// TriggerNodeTimeout carries the evicted node id as trigger data.
	TriggerNodeTimeout = "node_timeout"
)

// Algorithm is the pluggable fusion algorithm contract. The manager
// guarantees that at most one of these methods runs at a time, always
// with exclusive access to the Context.
type Algorithm interface {
	// Name identifies the algorithm; the registry keys factories by it.
	Name() string
	Version() string
	Description() string

	// Initialize assembles the state machine and seeds context state.
	// Called once, under the exclusive algorithm lock, before any other
	// hook.
	Initialize(ctx *Context) error

	// ProcessInbound consumes one L1 message.
	ProcessInbound(ctx *Context, msg *message.Inbound) error

	// Update is the periodic tick, driven at ctx.UpdateInterval.
	Update(ctx *Context) error

	// HandleTrigger dispatches a named event. Well-known names may have
	// domain side effects; unknown names fall through to the state
	// machine and are a silent no-op when no transition matches.
	HandleTrigger(ctx *Context, name string, data any) error

	// Shutdown releases resources and may emit final outputs.
	Shutdown(ctx *Context) error
}

// Factory constructs a fresh algorithm instance.
type Factory func() Algorithm

// Registry maps algorithm names to factories. Safe for concurrent use;
// lookups proceed while registrations run.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register stores a factory keyed by the algorithm's self-reported name,
// resolved by constructing a throwaway instance.
func (r *Registry) Register(f Factory) {
	name := f().Name()
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Create returns a fresh instance of a named algorithm.
func (r *Registry) Create(name string) (Algorithm, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrConfigNotFound, "Registry", "Create", "unknown algorithm "+name)
	}
	return f(), nil
}

// Available reports whether a named algorithm is registered.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists the registered algorithms, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry is the process-wide registry the CLI resolves
// --algorithm against. Algorithm packages register themselves in init.
var DefaultRegistry = NewRegistry()
