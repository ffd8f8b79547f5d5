// Package timer provides a single-use stopwatch used to bound retry loops
// and to measure how long a quorum round took.
package timer

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
)

const (
	stateNotStarted = iota + 1
	stateRunning
	stateStopped
)

var (
	ErrNotStarted     = errors.New("timer not started")
	ErrAlreadyStarted = errors.New("timer already started")
	ErrAlreadyStopped = errors.New("timer already stopped")
)

type Timer struct {
	clock clockwork.Clock
	state atomic.Int32

	started time.Time
	stopped time.Time
}

// New returns a timer that has not been started yet. A nil clock means the real clock.
func New(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Timer{clock: clock}
	t.state.Store(stateNotStarted)
	return t
}

// Start returns a running timer.
func Start(clock clockwork.Clock) *Timer {
	t := New(clock)
	_ = t.Start()
	return t
}

func (t *Timer) Start() error {
	if t.state.Load() != stateNotStarted {
		return ErrAlreadyStarted
	}
	t.started = t.clock.Now()
	t.state.Store(stateRunning)
	return nil
}

func (t *Timer) Stop() error {
	switch t.state.Load() {
	case stateNotStarted:
		return ErrNotStarted
	case stateStopped:
		return ErrAlreadyStopped
	}
	t.stopped = t.clock.Now()
	t.state.Store(stateStopped)
	return nil
}

// Elapsed reports the time since Start, frozen once the timer is stopped.
func (t *Timer) Elapsed() (time.Duration, error) {
	switch t.state.Load() {
	case stateRunning:
		return t.clock.Since(t.started), nil
	case stateStopped:
		return t.stopped.Sub(t.started), nil
	default:
		return 0, ErrNotStarted
	}
}
