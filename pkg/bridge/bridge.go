// Package bridge serializes events from concurrent producers onto the
// single goroutine that owns the power state machine. Producers - the
// sensor loop, the remote command channel, the input observer, and the
// dashboard - only ever enqueue immutable event values here.
package bridge

import (
	"context"
	"time"

	"github.com/teslashibe/go-kiosk/internal/log"
	"github.com/teslashibe/go-kiosk/pkg/power"
)

// PollInterval is the fixed cadence of the absence-timeout check. The
// worst-case delay in detecting a timeout is one poll interval; that
// coarseness is an accepted trade-off for simplicity.
const PollInterval = 5 * time.Second

// Handler consumes serialized events. *power.Machine satisfies it.
type Handler interface {
	Handle(power.Event)
}

// Bridge owns the consumer goroutine. Events are delivered one at a
// time, in arrival order per source.
type Bridge struct {
	machine Handler
	events  chan power.Event
	poll    time.Duration
	logger  interface {
		Error(msg string, args ...any)
	}
}

// New creates a bridge for the given machine.
func New(machine Handler) *Bridge {
	return &Bridge{
		machine: machine,
		events:  make(chan power.Event, 64),
		poll:    PollInterval,
		logger:  log.Component("bridge"),
	}
}

// Post enqueues an event. Safe from any goroutine; blocks briefly only
// if the consumer is behind, preserving per-source ordering.
func (b *Bridge) Post(ev power.Event) {
	b.events <- ev
}

// Run consumes events until the context is canceled. It also drives the
// periodic timeout poll. Call exactly once.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.dispatch(ev)
		case now := <-ticker.C:
			b.dispatch(power.TimeoutPoll{At: now})
		}
	}
}

// dispatch isolates the handler so one panicking decision cannot stop
// delivery of subsequent events.
func (b *Bridge) dispatch(ev power.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic handling event", "event", ev, "panic", r)
		}
	}()
	b.machine.Handle(ev)
}
