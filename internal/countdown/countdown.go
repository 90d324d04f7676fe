// Package countdown drives the retry timer shown after a provider rate limit.
package countdown

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/comesano/internal/ai"
	mpkg "github.com/local/comesano/internal/metrics"
)

// State of the controller.
type State int

const (
	Idle State = iota
	Counting
	Expired
)

func (s State) String() string {
	switch s {
	case Counting:
		return "counting"
	case Expired:
		return "expired"
	}
	return "idle"
}

// Snapshot is the observable state.
type Snapshot struct {
	State     State
	Remaining int
}

// Ticker delivers one value per interval until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Option customizes a Controller.
type Option func(*Controller)

// WithTicker replaces the per-second ticker (tests).
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(c *Controller) {
		if f != nil {
			c.newTicker = f
		}
	}
}

// WithOnChange registers a callback invoked after every state or remaining
// change. It runs outside the controller lock but must not block.
func WithOnChange(f func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = f }
}

// Controller is a cancellable one-second countdown. Idle -> Counting on a
// rate limit with a hint, Counting -> Expired at zero, any -> Idle on Reset.
type Controller struct {
	mu        sync.Mutex
	state     State
	remaining int
	gen       uint64
	stop      chan struct{}
	closed    bool

	newTicker func(time.Duration) Ticker
	onChange  func(Snapshot)
}

func New(opts ...Option) *Controller {
	c := &Controller{newTicker: newRealTicker}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Remaining: c.remaining}
}

// StartFromError starts a countdown when err is an HTTP 429 whose message
// carries a retry hint. It reports whether a countdown was started.
func (c *Controller) StartFromError(err error) bool {
	if !ai.IsRateLimited(err) {
		return false
	}
	var ire *ai.InvalidResponseError
	if !errors.As(err, &ire) {
		return false
	}
	hint, ok := ParseRetryHint(ire.Message)
	if !ok {
		log.Debug().Str("provider", string(ire.Provider)).Msg("rate limit without retry hint")
		return false
	}
	return c.Start(Seconds(hint))
}

// Start cancels any running countdown and counts down from seconds.
// Zero or less goes straight to Expired.
func (c *Controller) Start(seconds int) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.cancelLocked()
	if seconds <= 0 {
		c.state, c.remaining = Expired, 0
		snap := c.snapshotLocked()
		c.mu.Unlock()
		mpkg.CountdownEvent("expired")
		c.notify(snap)
		return true
	}
	c.state, c.remaining = Counting, seconds
	gen, stop := c.gen, make(chan struct{})
	c.stop = stop
	ticker := c.newTicker(time.Second)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	mpkg.CountdownEvent("started")
	log.Info().Int("seconds", seconds).Msg("retry countdown started")
	c.notify(snap)
	go c.run(gen, stop, ticker)
	return true
}

// Reset cancels any countdown and returns to Idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	wasActive := c.state != Idle
	c.cancelLocked()
	c.state, c.remaining = Idle, 0
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if wasActive {
		mpkg.CountdownEvent("cancelled")
		c.notify(snap)
	}
}

// Close stops the countdown for good; later Start calls are ignored.
func (c *Controller) Close() {
	c.Reset()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Controller) run(gen uint64, stop <-chan struct{}, ticker Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}
		c.mu.Lock()
		if c.gen != gen || c.state != Counting {
			c.mu.Unlock()
			return
		}
		c.remaining--
		done := c.remaining <= 0
		if done {
			c.state, c.remaining = Expired, 0
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()

		if done {
			mpkg.CountdownEvent("expired")
		}
		c.notify(snap)
		if done {
			return
		}
	}
}

// cancelLocked invalidates the running loop. Caller holds mu.
func (c *Controller) cancelLocked() {
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, Remaining: c.remaining}
}

func (c *Controller) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
