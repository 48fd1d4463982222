package call

import (
	"sync"
	"time"
)

// DefaultEvictionGrace is how long an ended call stays visible in the
// registry before eviction, so status queries can still observe the
// terminal state.
const DefaultEvictionGrace = 30 * time.Second

// Registry is the process-wide table of calls, keyed by call ID. It is the
// only state shared across calls; a single call's audio path never touches
// it.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call

	grace   time.Duration
	onCount func(active int)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEvictionGrace overrides how long ended calls stay visible.
func WithEvictionGrace(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d >= 0 {
			r.grace = d
		}
	}
}

// WithActiveGauge installs a callback invoked with the call count after
// every register and removal. Used to drive the active-call metric.
func WithActiveGauge(fn func(active int)) RegistryOption {
	return func(r *Registry) { r.onCount = fn }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		calls: map[string]*Call{},
		grace: DefaultEvictionGrace,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a call. The call is scheduled for eviction once it ends.
func (r *Registry) Register(c *Call) error {
	r.mu.Lock()
	if _, exists := r.calls[c.ID]; exists {
		r.mu.Unlock()
		return ErrDuplicateCall
	}
	r.calls[c.ID] = c
	n := len(r.calls)
	r.mu.Unlock()

	c.setOnEnded(func() {
		if r.grace == 0 {
			r.Remove(c.ID)
			return
		}
		time.AfterFunc(r.grace, func() { r.Remove(c.ID) })
	})

	if r.onCount != nil {
		r.onCount(n)
	}
	return nil
}

// Lookup returns the call with the given ID.
func (r *Registry) Lookup(id string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return c, nil
}

// List returns a point-in-time snapshot of all registered calls.
func (r *Registry) List() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}

// Terminate forces the named call to end. Terminating an already ended
// call is a no-op; an unknown ID is ErrCallNotFound.
func (r *Registry) Terminate(id string) error {
	c, err := r.Lookup(id)
	if err != nil {
		return err
	}
	c.Terminate()
	return nil
}

// Remove evicts a call immediately. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.calls[id]
	delete(r.calls, id)
	n := len(r.calls)
	r.mu.Unlock()

	if existed && r.onCount != nil {
		r.onCount(n)
	}
}
