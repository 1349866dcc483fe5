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
)

// QuestInput is the metadata supplied when a quest is published.
type QuestInput struct {
	ID        string
	Title     string
	CreatorID string
	// DueDate accepts RFC 3339 or "YYYY-MM-DD[ HH:MM[:SS]]" in UTC. Empty
	// means no deadline.
	DueDate   string
	Mandatory bool
	Skills    []model.SkillRequirement
}

// AcceptResult reports the outcome of an accept. Notice is set when the
// quest was accepted past its deadline.
type AcceptResult struct {
	Assignment model.QuestAssignment
	CanSubmit  bool
	Notice     string
}

// AssignmentView is the read model of one (user, quest) pair.
type AssignmentView struct {
	UserID       string
	QuestID      string
	Status       model.AssignmentStatus
	DueAt        *time.Time
	EffectiveDue *time.Time
	PastDue      bool
	CanSubmit    bool
	Assignment   *model.QuestAssignment
	Submission   *model.Submission
}

const noticeMissedAccepted = "the deadline has passed: the quest was accepted but can no longer be submitted"

// RegisterQuest validates and stores quest metadata. Reviewers and
// administrators may publish; the creator defaults to the actor and only an
// administrator may publish on behalf of someone else.
func (s *Service) RegisterQuest(ctx context.Context, actor model.Actor, in QuestInput) (model.Quest, error) {
	const op = "service.register_quest"
	if err := requireUser(op, actor); err != nil {
		return model.Quest{}, s.fail(ctx, op, err)
	}
	if actor.Role != model.RoleReviewer && !actor.IsAdmin() {
		return model.Quest{}, s.fail(ctx, op, errkind.NewKind(op, errkind.ErrUnauthorized, "only reviewers and administrators may publish quests"))
	}

	q, err := s.buildQuest(op, actor, in)
	if err != nil {
		return model.Quest{}, s.fail(ctx, op, err)
	}

	err = s.store.Update(ctx, func(tx repository.Tx) error {
		return tx.PutQuest(ctx, q)
	})
	if errors.Is(err, repository.ErrConflict) {
		err = errkind.NewKindf(op, errkind.ErrAlreadyProcessed, "quest %q already exists", q.ID)
	}
	if err != nil {
		return model.Quest{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.logger.Debug(ctx, "quest registered",
		logger.String("questID", q.ID),
		logger.String("creatorID", q.CreatorID),
		logger.Int("skills", len(q.Skills)),
	)
	return q, nil
}

func (s *Service) buildQuest(op string, actor model.Actor, in QuestInput) (model.Quest, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Quest{}, errkind.NewKind(op, errkind.ErrValidation, "title is required")
	}
	due, err := model.ParseDueDate(in.DueDate)
	if err != nil {
		return model.Quest{}, errkind.NewKindf(op, errkind.ErrValidation, "unparseable due date %q", in.DueDate)
	}

	creator := actor.UserID
	if c := strings.TrimSpace(in.CreatorID); c != "" && c != actor.UserID {
		if !actor.IsAdmin() {
			return model.Quest{}, errkind.NewKind(op, errkind.ErrUnauthorized, "only an administrator may publish on behalf of another user")
		}
		creator = c
	}

	seen := make(map[string]bool, len(in.Skills))
	skills := make([]model.SkillRequirement, 0, len(in.Skills))
	for _, sk := range in.Skills {
		name := strings.TrimSpace(sk.Name)
		if name == "" {
			return model.Quest{}, errkind.NewKind(op, errkind.ErrValidation, "skill name is required")
		}
		if sk.Tier < scoring.MinTier || sk.Tier > scoring.MaxTier {
			return model.Quest{}, errkind.NewKindf(op, errkind.ErrValidation, "skill %q tier must be between %d and %d", name, scoring.MinTier, scoring.MaxTier)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return model.Quest{}, errkind.NewKindf(op, errkind.ErrValidation, "skill %q is listed twice", name)
		}
		seen[key] = true
		skills = append(skills, model.SkillRequirement{Name: name, Tier: sk.Tier})
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newID()
	}
	return model.Quest{
		ID:        id,
		Title:     title,
		CreatorID: creator,
		DueAt:     due,
		Mandatory: in.Mandatory,
		Skills:    skills,
		CreatedAt: s.clock.Now(),
	}, nil
}

// Assign creates an ASSIGNED record for userID. Only the quest creator or
// an administrator may assign.
func (s *Service) Assign(ctx context.Context, actor model.Actor, questID, userID string) (model.QuestAssignment, error) {
	const op = "service.assign"
	if err := requireUser(op, actor); err != nil {
		return model.QuestAssignment{}, s.fail(ctx, op, err)
	}
	if strings.TrimSpace(userID) == "" {
		return model.QuestAssignment{}, s.fail(ctx, op, errkind.NewKind(op, errkind.ErrValidation, "user id is required"))
	}

	now := s.clock.Now()
	var out model.QuestAssignment
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		q, err := loadQuest(ctx, tx, op, questID)
		if err != nil {
			return err
		}
		if !actor.CanGrade(q) {
			return errkind.NewKind(op, errkind.ErrUnauthorized, "only the quest creator or an administrator may assign it")
		}
		existing, err := loadAssignment(ctx, tx, userID, questID)
		if err != nil {
			return err
		}
		a, err := lifecycle.Assign(existing, q, userID, newID(), now)
		if err != nil {
			return err
		}
		out = a
		return tx.PutAssignment(ctx, a)
	})
	if err != nil {
		return model.QuestAssignment{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.stats.assigned.Add(1)
	s.logger.Debug(ctx, "quest assigned", logger.String("questID", questID), logger.String("userID", userID))
	return out, nil
}

// Accept starts the quest for the actor. Past the deadline the quest is
// still accepted but lands in missed_accepted and cannot be submitted.
func (s *Service) Accept(ctx context.Context, actor model.Actor, questID string) (AcceptResult, error) {
	const op = "service.accept"
	if err := requireUser(op, actor); err != nil {
		return AcceptResult{}, s.fail(ctx, op, err)
	}

	now := s.clock.Now()
	var res AcceptResult
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		q, err := loadQuest(ctx, tx, op, questID)
		if err != nil {
			return err
		}
		existing, err := loadAssignment(ctx, tx, actor.UserID, questID)
		if err != nil {
			return err
		}
		a, err := lifecycle.Accept(existing, q, actor.UserID, newID(), now)
		if err != nil {
			return err
		}
		res = AcceptResult{Assignment: a, CanSubmit: lifecycle.CanSubmit(&a)}
		if a.Status == model.StatusMissedAccepted {
			res.Notice = noticeMissedAccepted
		}
		return tx.PutAssignment(ctx, a)
	})
	if err != nil {
		return AcceptResult{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.stats.accepted.Add(1)
	s.logger.Debug(ctx, "quest accepted",
		logger.String("questID", questID),
		logger.String("userID", actor.UserID),
		logger.String("status", string(res.Assignment.Status)),
	)
	return res, nil
}

// Decline closes the quest for the actor. Mandatory quests may be declined;
// the decline is recorded and never later marked missed.
func (s *Service) Decline(ctx context.Context, actor model.Actor, questID string) (model.QuestAssignment, error) {
	const op = "service.decline"
	if err := requireUser(op, actor); err != nil {
		return model.QuestAssignment{}, s.fail(ctx, op, err)
	}

	now := s.clock.Now()
	var out model.QuestAssignment
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		q, err := loadQuest(ctx, tx, op, questID)
		if err != nil {
			return err
		}
		existing, err := loadAssignment(ctx, tx, actor.UserID, questID)
		if err != nil {
			return err
		}
		a, err := lifecycle.Decline(existing, q, actor.UserID, newID(), now)
		if err != nil {
			return err
		}
		out = a
		return tx.PutAssignment(ctx, a)
	})
	if err != nil {
		return model.QuestAssignment{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.stats.declined.Add(1)
	s.logger.Debug(ctx, "quest declined", logger.String("questID", questID), logger.String("userID", actor.UserID))
	return out, nil
}

// Submit records evidence for an in-progress quest.
func (s *Service) Submit(ctx context.Context, actor model.Actor, questID string, p model.Payload) (model.Submission, error) {
	const op = "service.submit"
	if err := requireUser(op, actor); err != nil {
		return model.Submission{}, s.fail(ctx, op, err)
	}

	now := s.clock.Now()
	var out model.Submission
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := loadQuest(ctx, tx, op, questID); err != nil {
			return err
		}
		a, err := loadAssignment(ctx, tx, actor.UserID, questID)
		if err != nil {
			return err
		}
		active, err := loadActiveSubmission(ctx, tx, actor.UserID, questID)
		if err != nil {
			return err
		}
		next, sub, err := lifecycle.Submit(a, active, p, newID(), now)
		if err != nil {
			return err
		}
		if err := tx.PutAssignment(ctx, next); err != nil {
			return err
		}
		out = sub
		return tx.PutSubmission(ctx, sub)
	})
	if err != nil {
		return model.Submission{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.stats.submitted.Add(1)
	s.logger.Debug(ctx, "quest submitted",
		logger.String("questID", questID),
		logger.String("userID", actor.UserID),
		logger.String("submissionID", out.ID),
	)
	return out, nil
}

// Edit replaces the evidence of a submission that is not yet approved or
// rejected and puts it back in the review queue.
func (s *Service) Edit(ctx context.Context, actor model.Actor, questID string, p model.Payload) (model.Submission, error) {
	const op = "service.edit"
	if err := requireUser(op, actor); err != nil {
		return model.Submission{}, s.fail(ctx, op, err)
	}

	now := s.clock.Now()
	var out model.Submission
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := loadQuest(ctx, tx, op, questID); err != nil {
			return err
		}
		a, err := loadAssignment(ctx, tx, actor.UserID, questID)
		if err != nil {
			return err
		}
		active, err := loadActiveSubmission(ctx, tx, actor.UserID, questID)
		if err != nil {
			return err
		}
		sub, err := lifecycle.Edit(a, active, p, now)
		if err != nil {
			return err
		}
		out = sub
		return tx.PutSubmission(ctx, sub)
	})
	if err != nil {
		return model.Submission{}, s.fail(ctx, op, err)
	}

	s.ok(op)
	s.stats.edited.Add(1)
	s.logger.Debug(ctx, "submission edited", logger.String("questID", questID), logger.String("submissionID", out.ID))
	return out, nil
}

// GetAssignmentStatus returns the (user, quest) state. A pair without a
// record reports status none.
func (s *Service) GetAssignmentStatus(ctx context.Context, userID, questID string) (AssignmentView, error) {
	const op = "service.assignment_status"
	if strings.TrimSpace(userID) == "" {
		return AssignmentView{}, s.fail(ctx, op, errkind.NewKind(op, errkind.ErrValidation, "user id is required"))
	}

	now := s.clock.Now()
	view := AssignmentView{UserID: userID, QuestID: questID, Status: model.StatusNone}
	err := s.store.View(ctx, func(tx repository.Tx) error {
		q, err := loadQuest(ctx, tx, op, questID)
		if err != nil {
			return err
		}
		a, err := loadAssignment(ctx, tx, userID, questID)
		if err != nil {
			return err
		}
		sub, err := loadActiveSubmission(ctx, tx, userID, questID)
		if err != nil {
			return err
		}
		view.DueAt = q.DueAt
		if a != nil {
			view.Status = a.Status
			view.Assignment = a
			if a.DueAt != nil {
				view.DueAt = a.DueAt
			}
		}
		view.Submission = sub
		return nil
	})
	if err != nil {
		return AssignmentView{}, s.fail(ctx, op, err)
	}

	if view.DueAt != nil {
		eff := lifecycle.EffectiveDue(*view.DueAt)
		view.EffectiveDue = &eff
		view.PastDue = lifecycle.PastDue(view.DueAt, now)
	}
	view.CanSubmit = lifecycle.CanSubmit(view.Assignment)
	return view, nil
}
