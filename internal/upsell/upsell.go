// Package upsell drives the single promotional prompt shown during
// checkout. A session sees the prompt at most once: after an accept,
// a cancel, or a timeout it never reopens until the session boundary
// resets the controller.
package upsell

import (
	"sync"
	"time"

	"orderflow/internal/model"
)

// State is the prompt's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateShowing   State = "showing"
	StateAccepted  State = "accepted"  // terminal-positive for the session
	StateCancelled State = "cancelled" // terminal-negative for the session
	StateTimedOut  State = "timed_out" // auto-dismissed, suppresses like cancel
)

// DefaultCountdownStart is the countdown's starting value in ticks.
const DefaultCountdownStart = 8

// Config tunes the countdown. Tests shrink Tick; production uses the
// defaults (8 ticks at 1s resolution, 8s absolute timeout).
type Config struct {
	CountdownStart int           // 0 → DefaultCountdownStart
	Tick           time.Duration // 0 → 1s
}

func (c Config) withDefaults() Config {
	if c.CountdownStart <= 0 {
		c.CountdownStart = DefaultCountdownStart
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	return c
}

// Controller is the prompt state machine. It owns both timers the
// Showing state needs (the per-tick countdown and the absolute
// auto-dismiss timeout) and stops both on every terminal transition,
// on Reset, and on Close. No timer callback mutates state after a
// terminal transition or teardown.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	state      State
	item       model.Product
	countdown  int
	suppressed bool
	closed     bool
	stop       chan struct{} // closed to halt the timer goroutine
}

// NewController returns an idle controller.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg.withDefaults(), state: StateIdle}
}

// Show presents the prompt for item and starts both timers.
// Returns false without side effects when the prompt is suppressed
// for this session, already showing, or the controller is closed.
func (c *Controller) Show(item model.Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.suppressed || c.state == StateShowing {
		return false
	}

	c.state = StateShowing
	c.item = item
	c.countdown = c.cfg.CountdownStart
	c.stop = make(chan struct{})

	go c.run(c.stop)
	return true
}

// run decrements the countdown every tick and fires the absolute
// timeout. The stop channel belongs to one Showing episode; a stale
// goroutine observes its own channel closed and exits without
// touching state.
func (c *Controller) run(stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	timeout := time.NewTimer(time.Duration(c.cfg.CountdownStart) * c.cfg.Tick)
	defer timeout.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick(stop)
		case <-timeout.C:
			c.timeOut(stop)
			return
		}
	}
}

// tick decrements the visible countdown, never below zero.
func (c *Controller) tick(stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != stop || c.state != StateShowing {
		return
	}
	if c.countdown > 0 {
		c.countdown--
	}
}

// timeOut auto-dismisses the prompt when neither Accept nor Cancel
// arrived within the absolute timeout.
func (c *Controller) timeOut(stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != stop || c.state != StateShowing {
		return
	}
	c.state = StateTimedOut
	c.suppressed = true
	c.halt()
}

// Accept records a positive answer. Terminal for the session.
func (c *Controller) Accept() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateShowing {
		return false
	}
	c.state = StateAccepted
	c.suppressed = true
	c.halt()
	return true
}

// Cancel records a decline. Terminal for the session.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateShowing {
		return false
	}
	c.state = StateCancelled
	c.suppressed = true
	c.halt()
	return true
}

// Accepted reports whether the session accepted the promotion.
func (c *Controller) Accepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAccepted
}

// Reset returns to Idle and clears session suppression. Used on
// session boundaries (leaving and re-entering the checkout flow).
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.halt()
	c.state = StateIdle
	c.item = model.Product{}
	c.countdown = 0
	c.suppressed = false
}

// Close tears the controller down, stopping any live timers.
// All later calls are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halt()
	c.closed = true
}

// halt stops the active timer goroutine. Caller holds the lock.
func (c *Controller) halt() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Countdown returns the remaining tick count while Showing.
func (c *Controller) Countdown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown
}

// Item returns the product being promoted.
func (c *Controller) Item() model.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item
}
