package worker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyStarted   = errors.New("worker already started")
	ErrInvalidInterval  = errors.New("worker interval must be positive")
	ErrInvalidPrecision = errors.New("worker precision must be positive and not exceed the interval")
	ErrSetup            = errors.New("worker setup failed")
	ErrTick             = errors.New("worker tick failed")
)

// Task is the unit of work a PeriodicWorker schedules.
//
// Setup runs once before the first tick, Loop runs once per tick and
// Teardown runs once when the worker exits, whether it stopped or failed.
// A non-nil error from Setup or Loop is fatal to the worker.
type Task interface {
	Setup(ctx context.Context) error
	Loop(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Worker represents a long-running background process with an explicit
// start/stop/join lifecycle.
type Worker interface {
	// Name returns a unique identifier for this worker (e.g., "departures", "archiver")
	Name() string

	// Start launches the worker's control goroutine. It may be called once.
	Start(ctx context.Context) error

	// Stop requests cooperative cancellation and returns immediately.
	Stop()

	// Join waits for the control goroutine to exit. It reports false if
	// the timeout elapsed first.
	Join(timeout time.Duration) bool

	// State returns the current lifecycle state.
	State() State
}

// Config configures the scheduling of a PeriodicWorker.
type Config struct {
	Name     string
	Interval time.Duration
	// Precision bounds how far past its due time a tick may fire.
	// Zero means Interval/10.
	Precision time.Duration
}

func (c Config) normalize() (Config, error) {
	if c.Interval <= 0 {
		return c, ErrInvalidInterval
	}
	if c.Precision == 0 {
		c.Precision = c.Interval / 10
	}
	if c.Precision <= 0 || c.Precision > c.Interval {
		return c, ErrInvalidPrecision
	}
	return c, nil
}

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopRequested
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can leave s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
