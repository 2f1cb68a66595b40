// Package call establishes a two-party audio/video session by negotiating
// SDP and ICE over a shared signaling topic, then manages the local and
// remote media streams for the session's lifetime.
//
// The public surface is Controller (listen/call/hangup behind a small
// state machine); the handler type underneath owns the session itself.
package call

import (
	"log"
	"sync"
)

// State is the controller's public lifecycle state.
type State int

const (
	StateInitialized State = iota
	StateCalling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "INITIALIZED"
	case StateCalling:
		return "CALLING"
	case StateTerminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// Controller gates which session operations may run. The state only moves
// forward: INITIALIZED to CALLING (via Listen or Call) to TERMINATED (via
// Hangup). A controller is good for exactly one call attempt.
//
// Note the one deliberate asymmetry: a remote hangup tears the session
// down but leaves the controller in CALLING; only a local Hangup moves it
// to TERMINATED. Callers that need to observe remote termination should
// use the OnTerminated callback, which fires on either path.
type Controller struct {
	mu      sync.Mutex
	state   State
	handler *handler
}

// New validates cfg and returns a controller in INITIALIZED. On invalid
// configuration the error is reported once through the error policy
// (OnError if set, the log otherwise) and the returned controller is
// permanently inert: every method is a no-op and no callback ever fires.
func New(cfg Config) *Controller {
	c := &Controller{}
	if err := cfg.validate(); err != nil {
		if cfg.OnError != nil {
			cfg.OnError(err)
		} else {
			log.Printf("CALL: invalid configuration: %v", err)
		}
		return c
	}
	cfg.applyDefaults()
	c.handler = newHandler(cfg)
	c.state = StateInitialized
	return c
}

// State returns the controller's current public state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listen starts the session as callee: wait for the remote offer and
// answer it. Valid only in INITIALIZED; a no-op otherwise.
func (c *Controller) Listen() {
	c.start(false)
}

// Call starts the session as caller: originate the offer once local media
// is ready. Valid only in INITIALIZED; a no-op otherwise.
func (c *Controller) Call() {
	c.start(true)
}

func (c *Controller) start(caller bool) {
	c.mu.Lock()
	if c.handler == nil || c.state != StateInitialized {
		c.mu.Unlock()
		return
	}
	c.state = StateCalling
	h := c.handler
	c.mu.Unlock()

	h.initialize(caller)
}

// Hangup ends the call: publishes one bye message, tears the session down
// and moves to TERMINATED. Valid only in CALLING; a no-op otherwise,
// including after a previous Hangup.
func (c *Controller) Hangup() {
	c.mu.Lock()
	if c.handler == nil || c.state != StateCalling {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	h := c.handler
	c.mu.Unlock()

	h.hangupLocal()
}
