package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PeriodicWorker runs a Task at a fixed wall-clock interval on its own
// goroutine.
//
// While waiting for the next tick the worker sleeps in steps of Precision,
// so a tick fires at most Precision after it is due. Stop wakes a sleeping
// worker immediately but never interrupts a tick in progress.
type PeriodicWorker struct {
	task      Task
	name      string
	interval  time.Duration
	precision time.Duration
	logger    Logger
	now       func() time.Time

	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error

	// owned by the control goroutine
	lastRun time.Time
}

// Option configures a PeriodicWorker.
type Option func(*PeriodicWorker)

// WithClock overrides the time source used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(w *PeriodicWorker) {
		w.now = now
	}
}

// New creates a PeriodicWorker for task. The worker does nothing until Start.
func New(task Task, cfg Config, logger Logger, opts ...Option) (*PeriodicWorker, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, fmt.Errorf("worker %q: %w", cfg.Name, err)
	}

	w := &PeriodicWorker{
		task:      task,
		name:      cfg.Name,
		interval:  cfg.Interval,
		precision: cfg.Precision,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *PeriodicWorker) Name() string {
	return w.name
}

func (w *PeriodicWorker) Interval() time.Duration {
	return w.interval
}

func (w *PeriodicWorker) Precision() time.Duration {
	return w.precision
}

func (w *PeriodicWorker) State() State {
	return State(w.state.Load())
}

// Err returns the setup or tick error that failed the worker, if any.
func (w *PeriodicWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Start launches the control goroutine. The context is handed to every
// Setup, Loop and Teardown call; cancelling it does not stop the worker.
func (w *PeriodicWorker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.transition(StateRunning)
	if w.stopRequested() {
		w.transition(StateStopRequested)
	}
	go w.run(ctx)
	return nil
}

// Stop requests cancellation. It is safe to call any number of times from
// any goroutine, including before Start.
func (w *PeriodicWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.transition(StateStopRequested)
		w.logger.Debug("worker stop requested", zap.String("worker", w.name))
	})
}

// Join blocks until the control goroutine has exited or timeout elapses.
// A worker that was never started counts as exited. A non-positive timeout
// waits indefinitely.
func (w *PeriodicWorker) Join(timeout time.Duration) bool {
	if !w.started.Load() {
		return true
	}
	if timeout <= 0 {
		<-w.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the control goroutine exits.
func (w *PeriodicWorker) Done() <-chan struct{} {
	return w.done
}

func (w *PeriodicWorker) run(ctx context.Context) {
	defer close(w.done)

	w.logger.Debug("executing setup", zap.String("worker", w.name))
	if err := w.call(ctx, "setup", w.task.Setup); err != nil {
		w.fail(ctx, fmt.Errorf("%w: %w", ErrSetup, err))
		return
	}

	w.logger.Debug("entering loop",
		zap.String("worker", w.name),
		zap.Duration("interval", w.interval),
		zap.Duration("precision", w.precision))

	for !w.stopRequested() {
		if w.now().Sub(w.lastRun) < w.interval {
			w.sleep()
			continue
		}

		w.lastRun = w.now()
		if err := w.call(ctx, "loop", w.task.Loop); err != nil {
			w.fail(ctx, fmt.Errorf("%w: %w", ErrTick, err))
			return
		}
	}

	w.logger.Debug("performing teardown", zap.String("worker", w.name))
	w.teardown(ctx)
	w.transition(StateStopped)
	w.logger.Info("worker stopped", zap.String("worker", w.name))
}

// sleep waits for one precision step or until Stop is called.
func (w *PeriodicWorker) sleep() {
	timer := time.NewTimer(w.precision)
	defer timer.Stop()
	select {
	case <-w.stopCh:
	case <-timer.C:
	}
}

func (w *PeriodicWorker) stopRequested() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *PeriodicWorker) fail(ctx context.Context, err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()

	w.logger.Error("worker failed", zap.String("worker", w.name), zap.Error(err))
	w.logger.Warn("performing emergency teardown", zap.String("worker", w.name))
	w.teardown(ctx)
	w.transition(StateFailed)
}

func (w *PeriodicWorker) teardown(ctx context.Context) {
	if err := w.call(ctx, "teardown", w.task.Teardown); err != nil {
		w.logger.Error("teardown failed", zap.String("worker", w.name), zap.Error(err))
	}
}

// call runs one lifecycle phase, converting a panic into an error.
func (w *PeriodicWorker) call(ctx context.Context, phase string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", phase, r)
		}
	}()
	return fn(ctx)
}

// transition moves the worker to next unless it is already terminal.
// StopRequested is only reachable from Running.
func (w *PeriodicWorker) transition(next State) {
	for {
		cur := State(w.state.Load())
		if cur.Terminal() {
			return
		}
		if next == StateStopRequested && cur != StateRunning {
			return
		}
		if w.state.CompareAndSwap(int32(cur), int32(next)) {
			return
		}
	}
}
