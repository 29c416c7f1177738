package liveupdate

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/media-admin/livefeed/internal/clock"
)

// DefaultRetryDelay is the fixed pause between a transport failure and the
// next connection attempt.
const DefaultRetryDelay = 5 * time.Second

// Stats counts channel activity since construction.
type Stats struct {
	Connects   uint64 // explicit Start calls
	Reconnects uint64 // retries issued after a failure
	Failures   uint64 // transport errors observed
	Delivered  uint64 // events handed to the callback
	Dropped    uint64 // malformed records discarded
}

// Option configures a Channel.
type Option func(*Channel)

// WithRetryDelay overrides DefaultRetryDelay. Non-positive values are ignored.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithClock sets the clock used to schedule retries.
func WithClock(clk clock.Clock) Option {
	return func(c *Channel) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEventTypes sets which named events are dispatched. By default only
// unnamed events and events named "message" reach the callback.
func WithEventTypes(types ...string) Option {
	return func(c *Channel) {
		c.eventTypes = map[string]bool{"": true}
		for _, t := range types {
			c.eventTypes[t] = true
		}
	}
}

// Channel keeps one live update transport alive and dispatches its records.
//
// Every transport is tagged with the generation current when it was dialed.
// Start, Stop and each failure advance the generation, so callbacks from a
// retired transport or a cancelled retry are recognised and ignored. This is
// what keeps at most one live transport and one pending retry per Channel.
type Channel struct {
	dialer     Dialer
	clock      clock.Clock
	retryDelay time.Duration
	logger     *slog.Logger
	eventTypes map[string]bool

	mu          sync.Mutex
	state       State
	endpoint    string
	onEvent     func(UpdateEvent)
	transport   Transport
	generation  uint64
	retryTimer  clock.Timer
	lastEventID string
	stats       Stats
}

// New creates a disconnected channel that dials through dialer.
func New(dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer:     dialer,
		clock:      clock.Real{},
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
		eventTypes: map[string]bool{"": true, "message": true},
		state:      Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "liveupdate")
	return c
}

// Start connects to endpointURL and delivers each parsed record to onEvent.
// A running transport or pending retry is torn down first, so calling Start
// again is a clean restart. Establishment completes asynchronously.
func (c *Channel) Start(endpointURL string, onEvent func(UpdateEvent)) {
	c.mu.Lock()
	old := c.detachLocked()
	c.endpoint = endpointURL
	c.onEvent = onEvent
	c.lastEventID = ""
	c.stats.Connects++
	c.setStateLocked(Connecting)
	gen := c.generation
	req := DialRequest{URL: endpointURL}
	c.mu.Unlock()

	closeTransport(old)
	c.dial(gen, req)
}

// Stop closes the transport, cancels any pending retry and leaves the
// channel Disconnected. It is safe to call in any state, including from the
// event callback. A callback already running when Stop is called is not
// waited for.
func (c *Channel) Stop() {
	c.mu.Lock()
	old := c.detachLocked()
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	closeTransport(old)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the activity counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// RetryDelay returns the configured retry delay.
func (c *Channel) RetryDelay() time.Duration {
	return c.retryDelay
}

// detachLocked retires the current transport and cancels the pending retry.
// The returned transport must be closed by the caller after unlocking.
func (c *Channel) detachLocked() Transport {
	c.generation++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	old := c.transport
	c.transport = nil
	return old
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", "from", c.state.String(), "to", s.String(), "endpoint", c.endpoint)
	c.state = s
}

// dial runs outside the lock. If the channel moved on while the dialer was
// working, the new transport is closed immediately.
func (c *Channel) dial(gen uint64, req DialRequest) {
	t, err := c.dialer.Dial(req, &link{c: c, gen: gen})
	if err != nil {
		c.transportFailed(gen, err)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		closeTransport(t)
		return
	}
	c.transport = t
	c.mu.Unlock()
}

func (c *Channel) opened(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != Connecting {
		return
	}
	c.setStateLocked(Open)
	c.logger.Info("live updates connected", "endpoint", c.endpoint)
}

// message handles one record. The callback runs on the delivering goroutine
// without the lock held.
func (c *Channel) message(gen uint64, rec Record) {
	c.mu.Lock()
	if gen != c.generation || c.state == Disconnected || c.state == Reconnecting {
		c.mu.Unlock()
		return
	}
	if rec.HasID {
		c.lastEventID = rec.ID
	}
	if !c.eventTypes[rec.Event] {
		c.mu.Unlock()
		return
	}
	onEvent := c.onEvent
	c.mu.Unlock()

	event, err := ParseEvent(rec.Data)
	if err != nil {
		c.mu.Lock()
		c.stats.Dropped++
		c.mu.Unlock()
		c.logger.Warn("dropping malformed event", "error", err, "bytes", len(rec.Data))
		return
	}

	c.mu.Lock()
	c.stats.Delivered++
	c.mu.Unlock()

	if onEvent != nil {
		onEvent(event)
	}
}

// transportFailed moves to Reconnecting and schedules exactly one retry.
func (c *Channel) transportFailed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || c.state == Disconnected || c.state == Reconnecting {
		c.mu.Unlock()
		return
	}
	old := c.detachLocked()
	c.stats.Failures++
	c.setStateLocked(Reconnecting)
	retryGen := c.generation
	c.retryTimer = c.clock.AfterFunc(c.retryDelay, func() { c.retry(retryGen) })
	endpoint := c.endpoint
	c.mu.Unlock()

	if !errors.Is(err, ErrTransport) {
		err = &TransportError{URL: endpoint, Reason: err}
	}
	c.logger.Warn("live update connection failed, retrying", "error", err, "retry_in", c.retryDelay)

	closeTransport(old)
}

// retry re-runs Start with the current endpoint and callback, keeping the
// last event id so the server can replay what was missed.
func (c *Channel) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.generation++
	c.stats.Reconnects++
	c.setStateLocked(Connecting)
	next := c.generation
	req := DialRequest{URL: c.endpoint, LastEventID: c.lastEventID}
	c.mu.Unlock()

	c.dial(next, req)
}

func closeTransport(t Transport) {
	if t != nil {
		_ = t.Close()
	}
}

// link binds transport callbacks to the generation they were dialed for.
type link struct {
	c   *Channel
	gen uint64
}

func (l *link) Opened()            { l.c.opened(l.gen) }
func (l *link) Message(rec Record) { l.c.message(l.gen, rec) }
func (l *link) Failed(err error)   { l.c.transportFailed(l.gen, err) }
