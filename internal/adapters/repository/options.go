package repository

import (
	"time"

	"github.com/okian/questlog/internal/domain/dedupe"
	"github.com/okian/questlog/pkg/logger"
)

// Default persistence configuration constants.
const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 50 * time.Millisecond
)

type options struct {
	log          logger.Logger
	maxRetries   int
	retryBackoff time.Duration
	awardIndex   dedupe.Deduper
}

func defaultOptions() options {
	return options{
		log:          logger.Nop(),
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets the logger used for retries and failures.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between retries. The n-th retry
// waits n times this delay.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryBackoff = d
		}
	}
}

// WithAwardIndex sets the seen-set guarding award uniqueness in the memory
// store.
func WithAwardIndex(d dedupe.Deduper) Option {
	return func(o *options) {
		if d != nil {
			o.awardIndex = d
		}
	}
}
