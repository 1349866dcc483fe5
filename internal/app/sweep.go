package service

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/questlog/internal/adapters/repository"
	"github.com/okian/questlog/internal/domain/lifecycle"
	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

// ReevaluateDeadline marks every untouched ASSIGNED record of the quest as
// MISSED once its effective due instant has passed, and returns how many
// were marked. Declined records are never touched.
func (s *Service) ReevaluateDeadline(ctx context.Context, questID string) (int, error) {
	const op = "service.reevaluate_deadline"

	now := s.clock.Now()
	var marked int
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		marked = 0
		q, err := loadQuest(ctx, tx, op, questID)
		if err != nil {
			return err
		}
		if q.DueAt == nil {
			return nil
		}
		candidates, err := tx.AssignmentsForQuest(ctx, questID)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if c.Status != model.StatusAssigned {
				continue
			}
			// Re-read under the row lock so a concurrent accept or decline
			// wins over a stale snapshot.
			a, err := tx.Assignment(ctx, c.UserID, questID)
			if err != nil {
				return err
			}
			sub, err := loadActiveSubmission(ctx, tx, c.UserID, questID)
			if err != nil {
				return err
			}
			if !lifecycle.ShouldMarkMissed(a, sub != nil && !sub.Payload.Empty(), now) {
				continue
			}
			if err := tx.PutAssignment(ctx, lifecycle.MarkMissed(a, now)); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(ctx, op, err)
	}

	if marked > 0 {
		s.ok(op)
		s.stats.missed.Add(int64(marked))
		metrics.RecordMissed(marked)
		s.logger.Debug(ctx, "assignments marked missed", logger.String("questID", questID), logger.Int("marked", marked))
	}
	return marked, nil
}

// SweepDeadlines re-evaluates every overdue quest, at most
// sweepConcurrency at a time. It returns the total marked; the first
// failure is returned after every quest has been attempted.
func (s *Service) SweepDeadlines(ctx context.Context) (int, error) {
	start := time.Now()
	now := s.clock.Now()

	var due []string
	err := s.store.View(ctx, func(tx repository.Tx) error {
		due = nil
		quests, err := tx.Quests(ctx)
		if err != nil {
			return err
		}
		for _, q := range quests {
			if lifecycle.PastDue(q.DueAt, now) {
				due = append(due, q.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(ctx, "service.sweep_deadlines", err)
	}

	var total atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.sweepConcurrency)
	for _, id := range due {
		g.Go(func() error {
			n, err := s.ReevaluateDeadline(ctx, id)
			total.Add(int64(n))
			if err != nil {
				s.logger.Warn(ctx, "deadline re-evaluation failed", logger.String("questID", id), logger.Error(err))
			}
			return err
		})
	}
	err = g.Wait()

	s.stats.sweeps.Add(1)
	finished := time.Now()
	s.stats.lastSweep.Store(finished.Unix())
	metrics.RecordSweep(float64(finished.Sub(start).Microseconds())/1000, finished.Unix())

	return int(total.Load()), err
}
