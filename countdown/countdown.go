// Package countdown provides a cancellable second-by-second countdown.
// Each tick is scheduled only after the previous one fired, and Reset
// atomically invalidates any pending tick, so a stale tick can never
// corrupt a restarted countdown.
package countdown

import (
	"sync"
	"time"
)

// Countdown decrements once per interval from a starting value to zero and
// fires OnExpired exactly once per run. The zero value is not usable; use
// [New].
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool
	gen       uint64 // invalidates pending ticks on Reset/Stop
	timer     *time.Timer
	interval  time.Duration

	onTick    func(remaining int)
	onExpired func()
}

// Option tunes a Countdown.
type Option func(*Countdown)

// WithInterval overrides the one-second tick interval. Tests use short
// intervals.
func WithInterval(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithOnTick registers a per-tick observer. It is called with the
// remaining count after each decrement, including the final zero.
func WithOnTick(fn func(remaining int)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// WithOnExpired registers the expiry callback. It fires exactly once per
// Start/Reset cycle, when the count reaches zero.
func WithOnExpired(fn func()) Option {
	return func(c *Countdown) { c.onExpired = fn }
}

// New builds a stopped Countdown.
func New(opts ...Option) *Countdown {
	c := &Countdown{interval: time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins counting down from seconds. Starting while a run is active
// behaves like [Countdown.Reset].
func (c *Countdown) Start(seconds int) {
	c.Reset(seconds)
}

// Reset cancels any pending tick and restarts the countdown from seconds.
// The cancelled run's expiry never fires.
func (c *Countdown) Reset(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.expired = false
	if seconds <= 0 {
		c.remaining = 0
		return
	}
	c.remaining = seconds
	c.schedule(c.gen)
}

// Stop cancels the countdown without firing expiry. Idempotent.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.expired = false
	c.remaining = 0
}

// Remaining returns the current count.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the current run counted down to zero. Stop and
// Reset clear it.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// schedule arms the next tick for generation gen. Caller holds c.mu.
func (c *Countdown) schedule(gen uint64) {
	c.timer = time.AfterFunc(c.interval, func() { c.tick(gen) })
}

func (c *Countdown) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// A Reset or Stop raced this tick; drop it.
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	expired := remaining <= 0
	if expired {
		c.remaining = 0
		c.expired = true
		c.timer = nil
	} else {
		c.schedule(gen)
	}
	onTick := c.onTick
	onExpired := c.onExpired
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if expired && onExpired != nil {
		onExpired()
	}
}
