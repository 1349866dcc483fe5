package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/okian/questlog/internal/adapters/repository"
	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/lifecycle"
	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/internal/domain/scoring"
	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

// ReviewInput is a reviewer verdict on one submission. Grades are keyed by
// skill name; skills without a grade are scored as meeting expectations.
type ReviewInput struct {
	SubmissionID string
	Decision     string
	Feedback     string
	Grades       map[string]scoring.Grade
}

// ReviewResult carries the reviewed submission and, on approval, the awards
// it produced. AlreadyScored is set when the submission had been scored by
// an earlier approval and nothing was folded this time.
type ReviewResult struct {
	Submission    model.Submission
	Awards        []model.SkillAward
	AlreadyScored bool
}

// PendingFilter narrows ListPending to one quest when QuestID is set.
type PendingFilter struct {
	QuestID string
}

// QueueCounts partitions a quest's assignments. Every assignment is counted
// in exactly one field.
type QueueCounts struct {
	Pending       int
	Submitted     int
	NeedsRevision int
	Missed        int
	Declined      int
	Graded        int
}

// QuestQueue is a reviewer's view of one quest.
type QuestQueue struct {
	Quest          model.Quest
	Counts         QueueCounts
	AwaitingReview []model.Submission
}

// Review applies a verdict. Only the quest creator or an administrator may
// review. Approval scores every skill on the quest and folds the points
// into the owner's ledger exactly once per submission.
func (s *Service) Review(ctx context.Context, actor model.Actor, in ReviewInput) (ReviewResult, error) {
	const op = "service.review"
	if err := requireUser(op, actor); err != nil {
		return ReviewResult{}, s.fail(ctx, op, err)
	}
	decision, ok := model.ParseDecision(in.Decision)
	if !ok {
		return ReviewResult{}, s.fail(ctx, op, errkind.NewKindf(op, errkind.ErrValidation, "unknown decision %q", in.Decision))
	}

	now := s.clock.Now()
	var res ReviewResult
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		res = ReviewResult{}

		sub, err := tx.Submission(ctx, in.SubmissionID)
		if errors.Is(err, repository.ErrNotFound) {
			return errkind.NewKindf(op, errkind.ErrNotFound, "submission %q not found", in.SubmissionID)
		}
		if err != nil {
			return err
		}
		q, err := loadQuest(ctx, tx, op, sub.QuestID)
		if err != nil {
			return err
		}
		if !actor.CanGrade(q) {
			return errkind.NewKind(op, errkind.ErrUnauthorized, "only the quest creator or an administrator may review this submission")
		}
		a, err := tx.Assignment(ctx, sub.UserID, sub.QuestID)
		if errors.Is(err, repository.ErrNotFound) {
			return errkind.NewKind(op, errkind.ErrNotFound, "submission has no assignment")
		}
		if err != nil {
			return err
		}

		nextA, nextS, err := lifecycle.ApplyReview(a, sub, decision, strings.TrimSpace(in.Feedback), actor.UserID, now)
		if err != nil {
			return err
		}
		if err := tx.PutAssignment(ctx, nextA); err != nil {
			return err
		}
		if err := tx.PutSubmission(ctx, nextS); err != nil {
			return err
		}
		res.Submission = nextS

		if decision != model.DecisionApproved {
			return nil
		}
		return s.scoreAndFold(ctx, tx, q, nextS, in.Grades, &res)
	})
	if err != nil {
		return ReviewResult{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.stats.reviews.Add(1)
	metrics.RecordReview(string(decision))
	if res.AlreadyScored {
		metrics.RecordDuplicateAward()
	} else {
		for _, aw := range res.Awards {
			metrics.RecordAward(aw.AdjustedPoints)
		}
		s.stats.awards.Add(int64(len(res.Awards)))
	}
	s.logger.Debug(ctx, "submission reviewed",
		logger.String("submissionID", in.SubmissionID),
		logger.String("decision", string(decision)),
		logger.String("reviewerID", actor.UserID),
		logger.Int("awards", len(res.Awards)),
		logger.Any("alreadyScored", res.AlreadyScored),
	)
	return res, nil
}

// scoreAndFold writes one award per quest skill and folds it into the
// ledger. A submission that already has awards is left untouched; the
// unique (submission, skill) key stops a concurrent approval that slipped
// past that check.
func (s *Service) scoreAndFold(ctx context.Context, tx repository.Tx, q model.Quest, sub model.Submission, grades map[string]scoring.Grade, res *ReviewResult) error {
	existing, err := tx.Awards(ctx, sub.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		res.Awards = existing
		res.AlreadyScored = true
		return nil
	}

	now := *sub.ReviewedAt
	for _, sc := range s.engine.ScoreSubmission(q.Skills, grades) {
		award := model.SkillAward{
			ID:                    newID(),
			SubmissionID:          sub.ID,
			UserID:                sub.UserID,
			SkillName:             sc.SkillName,
			Tier:                  sc.Tier,
			BasePoints:            sc.BasePoints,
			PerformanceLabel:      sc.Label,
			PerformanceMultiplier: sc.Multiplier,
			AdjustedPoints:        sc.AdjustedPoints,
			Notes:                 sc.Notes,
			AwardedAt:             now,
		}
		inserted, err := tx.InsertAward(ctx, award)
		if err != nil {
			return err
		}
		if !inserted {
			res.AlreadyScored = true
			continue
		}
		if err := tx.FoldLedger(ctx, sub.UserID, sc.SkillName, sc.AdjustedPoints, now); err != nil {
			return err
		}
		res.Awards = append(res.Awards, award)
	}
	return nil
}

// ListPending returns the review queue for every quest the actor created,
// or every quest for an administrator.
func (s *Service) ListPending(ctx context.Context, actor model.Actor, f PendingFilter) ([]QuestQueue, error) {
	const op = "service.list_pending"
	if err := requireUser(op, actor); err != nil {
		return nil, s.fail(ctx, op, err)
	}

	now := s.clock.Now()
	var out []QuestQueue
	err := s.store.View(ctx, func(tx repository.Tx) error {
		out = nil
		var quests []model.Quest
		if id := strings.TrimSpace(f.QuestID); id != "" {
			q, err := loadQuest(ctx, tx, op, id)
			if err != nil {
				return err
			}
			if !actor.CanGrade(q) {
				return errkind.NewKind(op, errkind.ErrUnauthorized, "only the quest creator or an administrator may list its reviews")
			}
			quests = []model.Quest{q}
		} else {
			all, err := tx.Quests(ctx)
			if err != nil {
				return err
			}
			for _, q := range all {
				if actor.CanGrade(q) {
					quests = append(quests, q)
				}
			}
		}

		for _, q := range quests {
			queue, err := buildQueue(ctx, tx, q, now)
			if err != nil {
				return err
			}
			out = append(out, queue)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if out == nil {
		out = []QuestQueue{}
	}
	return out, nil
}

func buildQueue(ctx context.Context, tx repository.Tx, q model.Quest, now time.Time) (QuestQueue, error) {
	assignments, err := tx.AssignmentsForQuest(ctx, q.ID)
	if err != nil {
		return QuestQueue{}, err
	}
	subs, err := tx.SubmissionsForQuest(ctx, q.ID)
	if err != nil {
		return QuestQueue{}, err
	}
	byUser := make(map[string]*model.Submission, len(subs))
	for i := range subs {
		byUser[subs[i].UserID] = &subs[i]
	}

	queue := QuestQueue{Quest: q, AwaitingReview: []model.Submission{}}
	for _, a := range assignments {
		sub := byUser[a.UserID]
		switch lifecycle.Classify(a, sub, now) {
		case lifecycle.BucketPending:
			queue.Counts.Pending++
		case lifecycle.BucketSubmitted:
			queue.Counts.Submitted++
			if sub.Status.AwaitingReview() {
				queue.AwaitingReview = append(queue.AwaitingReview, *sub)
			}
		case lifecycle.BucketNeedsRevision:
			queue.Counts.NeedsRevision++
		case lifecycle.BucketMissed:
			queue.Counts.Missed++
		case lifecycle.BucketDeclined:
			queue.Counts.Declined++
		case lifecycle.BucketGraded:
			queue.Counts.Graded++
		}
	}
	return queue, nil
}
