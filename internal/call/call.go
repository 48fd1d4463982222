// Package call implements the per-call orchestration core: the call
// lifecycle state machine, the session that pumps audio and events between
// the duplex channel and the speech providers, and the registry that tracks
// live calls.
package call

import (
	"sync"
	"time"

	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

// StartOptions are the caller-supplied knobs accepted by a start request.
type StartOptions struct {
	// Voice selects the synthesis voice.
	Voice tts.VoiceProfile

	// UseRAG enables knowledge-base augmentation for this call.
	UseRAG bool

	// SystemPrompt overrides the agent persona. Empty keeps the default.
	SystemPrompt string
}

// Call is one voice call tracked by the registry. It is created by a start
// request, bound to a Session when the duplex channel connects, and evicted
// after a grace period once it ends.
//
// All methods are safe for concurrent use.
type Call struct {
	// ID is the opaque call identifier.
	ID string

	// Options are the start-request options, immutable after creation.
	Options StartOptions

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	endedAt    time.Time
	session    *Session
	onEnded    func()
	endedFired bool
}

// New creates a Call in StateIdle.
func New(id string, opts StartOptions) *Call {
	return &Call{
		ID:        id,
		Options:   opts,
		state:     StateIdle,
		startedAt: time.Now(),
	}
}

// State returns the current lifecycle state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartedAt returns the creation time.
func (c *Call) StartedAt() time.Time {
	return c.startedAt
}

// EndedAt returns when the call reached StateEnded, or the zero time if it
// has not.
func (c *Call) EndedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endedAt
}

// Duration returns the elapsed call time, frozen once the call ends.
func (c *Call) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endedAt.IsZero() {
		return c.endedAt.Sub(c.startedAt)
	}
	return time.Since(c.startedAt)
}

// Session returns the attached session, or nil before the duplex channel
// connects.
func (c *Call) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// transition applies one lifecycle event, stamping the end time and firing
// the registry eviction hook on entering StateEnded.
func (c *Call) transition(e Event) error {
	c.mu.Lock()
	next, err := Transition(c.state, e)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next

	var fire func()
	if next == StateEnded && !c.endedFired {
		c.endedFired = true
		c.endedAt = time.Now()
		fire = c.onEnded
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
	return nil
}

// attach binds the session created when the duplex channel connects.
// A second channel for the same call, or a channel for an ended call, is
// rejected.
func (c *Call) attach(s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded || c.state == StateError {
		return ErrCallClosed
	}
	if c.session != nil {
		return ErrDuplicateCall
	}
	c.session = s
	return nil
}

// setOnEnded installs the registry's eviction hook. Fires immediately when
// the call already ended.
func (c *Call) setOnEnded(fn func()) {
	c.mu.Lock()
	ended := c.state == StateEnded && !c.endedFired
	if ended {
		c.endedFired = true
	} else {
		c.onEnded = fn
	}
	c.mu.Unlock()
	if ended {
		fn()
	}
}

// End requests a graceful end. An active session drains in-flight playback
// before the call reaches StateEnded; a call that never connected ends
// immediately. Ending an ended call is a no-op.
func (c *Call) End() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.End()
		return
	}
	_ = c.transition(EventTerminate)
}

// Terminate forces the call to StateEnded from any state, discarding
// queued playback. Idempotent.
func (c *Call) Terminate() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.Terminate()
		return
	}
	_ = c.transition(EventTerminate)
}
