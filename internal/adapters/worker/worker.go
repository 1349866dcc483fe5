// Package worker runs periodic background jobs, currently the deadline sweep
// that moves overdue untouched assignments to missed.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

const defaultInterval = time.Minute

// Sweeper marks overdue assignments missed and reports how many it marked.
type Sweeper interface {
	SweepDeadlines(ctx context.Context) (int, error)
}

// Worker is a background loop with graceful shutdown.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the loop, waiting for an in-flight sweep to finish.
	Shutdown(ctx context.Context) error
}

// DeadlineSweeper calls a Sweeper on a fixed interval. Sweeps never
// overlap: a tick that fires while a sweep is running is dropped.
type DeadlineSweeper struct {
	sweeper    Sweeper
	name       string
	interval   time.Duration
	runOnStart bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

var _ Worker = (*DeadlineSweeper)(nil)

// NewDeadlineSweeper creates a sweeper loop around s.
func NewDeadlineSweeper(s Sweeper, opts ...Option) *DeadlineSweeper {
	w := &DeadlineSweeper{
		sweeper:  s,
		name:     "deadline-sweeper",
		interval: defaultInterval,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}

	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)

	return w
}

// Run starts the sweep loop.
func (w *DeadlineSweeper) Run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info(ctx, "deadline sweeper started", logger.String("interval", w.interval.String()))
	if w.runOnStart {
		w.RunOnce(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of assignments
// marked missed. Failures are logged and counted, never fatal.
func (w *DeadlineSweeper) RunOnce(ctx context.Context) int {
	start := time.Now()
	marked, err := w.sweeper.SweepDeadlines(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "sweep_error")
		w.logger.Error(ctx, "deadline sweep failed",
			logger.Int("marked", marked),
			logger.Error(err),
		)
		return marked
	}
	if marked > 0 {
		w.logger.Info(ctx, "deadline sweep marked assignments missed",
			logger.Int("marked", marked),
			logger.Float64("durationMs", float64(time.Since(start).Microseconds())/1000),
		)
	}
	return marked
}

// Shutdown gracefully stops the worker. It is safe to call more than once.
func (w *DeadlineSweeper) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
