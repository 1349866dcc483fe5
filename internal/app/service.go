// Package service orchestrates the quest lifecycle, review workflow, scoring
// and skill ledger over a transactional store. It is the dependency the HTTP
// API is built on.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/questlog/internal/adapters/repository"
	"github.com/okian/questlog/internal/adapters/worker"
	"github.com/okian/questlog/internal/domain/clock"
	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/internal/domain/progression"
	"github.com/okian/questlog/internal/domain/scoring"
	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultSweepConcurrency = 4
	defaultSweepInterval    = time.Minute
	stopTimeout             = 10 * time.Second
)

// counters are exported through GetStats.
type counters struct {
	accepted  atomic.Int64
	declined  atomic.Int64
	assigned  atomic.Int64
	submitted atomic.Int64
	edited    atomic.Int64
	reviews   atomic.Int64
	awards    atomic.Int64
	missed    atomic.Int64
	sweeps    atomic.Int64
	lastSweep atomic.Int64 // unix seconds
}

// Service implements the quest tracker operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	clock      clock.Clock
	engine     *scoring.Engine
	thresholds progression.ThresholdTable
	sweeper    *worker.DeadlineSweeper

	// Configuration
	sweepConcurrency int
	sweepInterval    time.Duration

	// State
	started bool
	stats   counters

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock sets the time source used for every transition.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithEngine sets the scoring engine.
func WithEngine(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithThresholds sets the level threshold table. Invalid tables are
// accepted and degrade to a single level.
func WithThresholds(t progression.ThresholdTable) Option {
	return func(s *Service) {
		if len(t) > 0 {
			s.thresholds = t
		}
	}
}

// WithSweepConcurrency bounds how many quests a sweep evaluates at once.
func WithSweepConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepConcurrency = n
		}
	}
}

// WithSweepInterval sets how often the background deadline sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without options it runs on an in-memory store
// and the system clock.
func New(opts ...Option) *Service {
	s := &Service{
		clock:            clock.System{},
		engine:           scoring.NewEngine(),
		thresholds:       progression.DefaultThresholds,
		sweepConcurrency: defaultSweepConcurrency,
		sweepInterval:    defaultSweepInterval,
		logger:           logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithLogger(s.logger.Named("memstore")))
	}

	return s
}

// Start launches the background deadline sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.sweeper = worker.NewDeadlineSweeper(s,
		worker.WithInterval(s.sweepInterval),
		worker.WithLogger(s.logger),
		worker.WithRunOnStart(true),
	)
	go s.sweeper.Run(ctx)

	s.started = true
	s.logger.Info(ctx, "quest service started",
		logger.String("sweepInterval", s.sweepInterval.String()),
		logger.Int("sweepConcurrency", s.sweepConcurrency),
	)
	return nil
}

// Stop stops the sweeper and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping quest service...")
	if s.sweeper != nil {
		if err := s.sweeper.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "sweeper shutdown", logger.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "quest service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          started,
		"accepted":         s.stats.accepted.Load(),
		"declined":         s.stats.declined.Load(),
		"assigned":         s.stats.assigned.Load(),
		"submitted":        s.stats.submitted.Load(),
		"edited":           s.stats.edited.Load(),
		"reviews":          s.stats.reviews.Load(),
		"awards":           s.stats.awards.Load(),
		"missedMarked":     s.stats.missed.Load(),
		"sweeps":           s.stats.sweeps.Load(),
		"sweepConcurrency": s.sweepConcurrency,
	}
	if last := s.stats.lastSweep.Load(); last > 0 {
		stats["lastSweepAt"] = time.Unix(last, 0).UTC().Format(time.RFC3339)
	}
	return stats
}

func newID() string { return uuid.NewString() }

// requireUser rejects anonymous actors.
func requireUser(op string, actor model.Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return errkind.NewKind(op, errkind.ErrUnauthorized, "an authenticated user is required")
	}
	return nil
}

// loadQuest reads a quest, reporting a missing one as NotFound.
func loadQuest(ctx context.Context, tx repository.Tx, op, id string) (model.Quest, error) {
	q, err := tx.Quest(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Quest{}, errkind.NewKindf(op, errkind.ErrNotFound, "quest %q not found", id)
	}
	return q, err
}

// loadAssignment returns nil when the (user, quest) pair has no record.
func loadAssignment(ctx context.Context, tx repository.Tx, userID, questID string) (*model.QuestAssignment, error) {
	a, err := tx.Assignment(ctx, userID, questID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// loadActiveSubmission returns nil when the pair has no submission.
func loadActiveSubmission(ctx context.Context, tx repository.Tx, userID, questID string) (*model.Submission, error) {
	sub, err := tx.ActiveSubmission(ctx, userID, questID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// fail translates err into a caller-facing failure. Store sentinels become
// domain kinds; persistence failures are logged in full and returned
// without their cause.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	var kindErr *errkind.Error
	switch {
	case errors.As(err, &kindErr):
	case errors.Is(err, repository.ErrConflict):
		err = errkind.NewKind(op, errkind.ErrInvalidTransition, "already interacted with this quest")
	case errors.Is(err, repository.ErrNotFound):
		err = errkind.NewKind(op, errkind.ErrNotFound, "record not found")
	default:
		err = errkind.WrapKind(op, errkind.ErrPersistence, err)
	}

	label := kindLabel(err)
	metrics.RecordTransition(op, label)
	if errors.Is(err, errkind.ErrPersistence) {
		metrics.RecordErrorByComponent("service", label)
		s.logger.Error(ctx, "persistence failure", logger.String("op", op), logger.Error(err))
		return errkind.Opaque(op, err)
	}
	s.logger.Debug(ctx, "operation rejected",
		logger.String("op", op),
		logger.String("kind", label),
		logger.String("reason", errkind.Reason(err)),
	)
	return err
}

func (s *Service) ok(op string) {
	metrics.RecordTransition(op, "ok")
}

// kindLabel is the metric label for an error kind.
func kindLabel(err error) string {
	switch errkind.KindOf(err) {
	case errkind.ErrInvalidTransition:
		return "invalid_transition"
	case errkind.ErrNotFound:
		return "not_found"
	case errkind.ErrUnauthorized:
		return "unauthorized"
	case errkind.ErrValidation:
		return "validation"
	case errkind.ErrAlreadyProcessed:
		return "already_processed"
	default:
		return "persistence"
	}
}
