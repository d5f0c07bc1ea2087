// Package delayed provides a cancellable, resettable single-shot timer.
//
// An Operation is armed with a predicate and an action. When the delay
// elapses without a Reset or Cancel, the predicate is evaluated on the
// timer goroutine and, if it holds, the action runs. Callers that need the
// action to touch shared state must synchronize inside the action.
package delayed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// State represents the lifecycle state of an Operation.
type State int

const (
	// StateIdle - Never armed.
	StateIdle State = iota
	// StateArmed - Countdown running.
	StateArmed
	// StateFired - Countdown elapsed. The action may or may not have run,
	// depending on the predicate.
	StateFired
	// StateCancelled - Cancelled before firing.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateFired:
		return "FIRED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

var (
	ErrInvalidDelay = errors.New("delay must be > 0")
	ErrNilAction    = errors.New("action must be defined")
)

// Operation is a single-shot timer bound to one logical purpose.
// Thread-safe for concurrent access.
type Operation struct {
	mu        sync.Mutex
	clock     clock.Clock
	delay     time.Duration
	tag       string
	logger    zerolog.Logger
	state     State
	predicate func() bool
	action    func()
	timer     *clock.Timer

	// epoch invalidates callbacks of timers that were stopped too late.
	epoch uint64
}

// New creates an idle Operation. A nil clock uses the wall clock.
func New(clk clock.Clock, delay time.Duration, tag string, logger zerolog.Logger) (*Operation, error) {
	if delay <= 0 {
		return nil, ErrInvalidDelay
	}
	if clk == nil {
		clk = clock.New()
	}
	o := &Operation{
		clock:  clk,
		delay:  delay,
		tag:    tag,
		logger: logger.With().Str("component", "delayed").Str("tag", tag).Logger(),
	}
	o.logger.Debug().Dur("delay", delay).Msg("Created delayed operation")
	return o, nil
}

// Arm schedules action to run after the configured delay. Any pending
// countdown is discarded first. A nil predicate always allows firing.
func (o *Operation) Arm(predicate func() bool, action func()) error {
	if action == nil {
		return ErrNilAction
	}
	if predicate == nil {
		predicate = func() bool { return true }
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()
	o.predicate = predicate
	o.action = action
	o.state = StateArmed
	o.scheduleLocked()

	o.logger.Debug().Msg("Armed delayed operation")
	return nil
}

// Reset restarts the countdown from the full delay. No-op unless armed.
func (o *Operation) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateArmed {
		return
	}
	o.stopLocked()
	o.scheduleLocked()
	o.logger.Debug().Msg("Reset delayed operation")
}

// Cancel prevents any pending firing. Idempotent.
func (o *Operation) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()
	if o.state == StateArmed {
		o.state = StateCancelled
		o.logger.Debug().Msg("Cancelled delayed operation")
	}
}

// State returns the current state.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Delay returns the configured delay.
func (o *Operation) Delay() time.Duration {
	return o.delay
}

func (o *Operation) scheduleLocked() {
	o.epoch++
	epoch := o.epoch
	o.timer = o.clock.AfterFunc(o.delay, func() { o.fire(epoch) })
}

func (o *Operation) stopLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.epoch++
}

func (o *Operation) fire(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || o.state != StateArmed {
		o.mu.Unlock()
		return
	}
	o.state = StateFired
	o.timer = nil
	predicate, action := o.predicate, o.action
	o.mu.Unlock()

	if !predicate() {
		o.logger.Debug().Msg("Delayed operation retired, predicate no longer holds")
		return
	}
	o.logger.Debug().Msg("Executing delayed operation")
	action()
}
