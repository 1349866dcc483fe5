package worker

import (
	"time"

	"github.com/okian/questlog/pkg/logger"
)

// Option applies a configuration option to the DeadlineSweeper.
type Option func(*DeadlineSweeper)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *DeadlineSweeper) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *DeadlineSweeper) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval sets how often a sweep runs.
func WithInterval(d time.Duration) Option {
	return func(w *DeadlineSweeper) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRunOnStart makes Run perform a sweep before the first tick.
func WithRunOnStart(enabled bool) Option {
	return func(w *DeadlineSweeper) {
		w.runOnStart = enabled
	}
}
