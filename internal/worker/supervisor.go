package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Logger is a minimal logging interface for structured logging with zap.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// WorkerSupervisor starts a fixed set of workers and shuts them down together.
// Workers are started in registration order; one worker failing never
// affects the others.
type WorkerSupervisor struct {
	workers         []Worker
	names           map[string]struct{}
	logger          Logger
	shutdownTimeout time.Duration // 0 means no timeout
}

// SupervisorOption configures a WorkerSupervisor.
type SupervisorOption func(*WorkerSupervisor)

// WithShutdownTimeout sets the maximum time to wait for workers to exit
// after they have been asked to stop.
// Default is 0 (no timeout - wait indefinitely).
func WithShutdownTimeout(timeout time.Duration) SupervisorOption {
	return func(r *WorkerSupervisor) {
		r.shutdownTimeout = timeout
	}
}

// NewWorkerSupervisor creates a new WorkerSupervisor.
func NewWorkerSupervisor(logger Logger, opts ...SupervisorOption) *WorkerSupervisor {
	r := &WorkerSupervisor{
		names:           make(map[string]struct{}),
		logger:          logger,
		shutdownTimeout: 0, // Default: no timeout
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a worker to the supervisor.
// Panics if a worker with the same name is already registered.
func (r *WorkerSupervisor) Register(w Worker) {
	if _, exists := r.names[w.Name()]; exists {
		panic(fmt.Sprintf("worker %s already registered", w.Name()))
	}
	r.names[w.Name()] = struct{}{}
	r.workers = append(r.workers, w)
	r.logger.Debug("worker registered", zap.String("worker", w.Name()))
}

// Start starts every registered worker in registration order. It stops at
// the first worker that refuses to start; workers already started keep
// running and are still covered by Shutdown.
func (r *WorkerSupervisor) Start(ctx context.Context) error {
	if len(r.workers) == 0 {
		r.logger.Warn("no workers registered")
		return nil
	}

	r.logger.Info("starting workers", zap.Int("count", len(r.workers)))
	for _, w := range r.workers {
		r.logger.Info("worker starting", zap.String("worker", w.Name()))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start worker %s: %w", w.Name(), err)
		}
	}
	return nil
}

// Shutdown asks every worker to stop, then waits for all of them to exit
// within the shutdown timeout. It returns an error naming each worker that
// was still running when the timeout elapsed.
func (r *WorkerSupervisor) Shutdown() error {
	r.logger.Info("shutting down workers")
	for _, w := range r.workers {
		w.Stop()
	}

	// Every worker is joined even after one times out, so errs names all
	// of the stragglers.
	errs := make([]error, len(r.workers))
	var g errgroup.Group
	for i, w := range r.workers {
		g.Go(func() error {
			if !w.Join(r.shutdownTimeout) {
				errs[i] = fmt.Errorf("worker %s still running", w.Name())
				return errs[i]
			}
			r.logger.Debug("worker joined",
				zap.String("worker", w.Name()),
				zap.String("state", w.State().String()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		pending := 0
		for _, e := range errs {
			if e != nil {
				pending++
			}
		}
		r.logger.Warn("shutdown timeout exceeded, some workers may still be running",
			zap.Duration("timeout", r.shutdownTimeout),
			zap.Int("pending", pending))
		return fmt.Errorf("shutdown timeout exceeded (%v): %w", r.shutdownTimeout, errors.Join(errs...))
	}

	r.logger.Info("all workers shutdown gracefully")
	return nil
}
