// Package lifecycle holds the per (user, quest) assignment state machine and
// the review transitions. Every function is pure: it takes the current
// records and an instant and returns the next records or a failure, never
// mutating its inputs.
package lifecycle

import (
	"net/url"
	"strings"
	"time"

	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/model"
)

// endOfDay is added to midnight-only due dates.
const endOfDay = 23*time.Hour + 59*time.Minute + 59*time.Second

const reasonAlreadyInteracted = "already interacted with this quest"

// EffectiveDue treats a due date stored at exactly midnight as the end of
// that day so same-day acceptance is not penalized.
func EffectiveDue(due time.Time) time.Time {
	h, m, s := due.Clock()
	if h == 0 && m == 0 && s == 0 && due.Nanosecond() == 0 {
		return due.Add(endOfDay)
	}
	return due
}

// PastDue reports whether now is after the effective due instant. Quests
// without a due date never expire.
func PastDue(due *time.Time, now time.Time) bool {
	if due == nil || due.IsZero() {
		return false
	}
	return now.After(EffectiveDue(*due))
}

func status(a *model.QuestAssignment) model.AssignmentStatus {
	if a == nil {
		return model.StatusNone
	}
	return a.Status
}

func fresh(q model.Quest, userID, id string, now time.Time) model.QuestAssignment {
	return model.QuestAssignment{
		ID:          id,
		UserID:      userID,
		QuestID:     q.ID,
		Status:      model.StatusNone,
		AssignedAt:  now,
		DueAt:       q.DueAt,
		IsMandatory: q.Mandatory,
	}
}

// Assign creates an ASSIGNED record for userID. id is used for the new record.
func Assign(existing *model.QuestAssignment, q model.Quest, userID, id string, now time.Time) (model.QuestAssignment, error) {
	const op = "lifecycle.assign"
	if existing != nil {
		return model.QuestAssignment{}, errkind.NewKindf(op, errkind.ErrInvalidTransition, "user already has this quest (%s)", existing.Status)
	}
	a := fresh(q, userID, id, now)
	a.Status = model.StatusAssigned
	a.UpdatedAt = now
	return a, nil
}

// Accept moves NONE or ASSIGNED forward. Past the effective due instant the
// record lands in MISSED_ACCEPTED and cannot be submitted; otherwise it
// becomes IN_PROGRESS with StartedAt stamped.
func Accept(existing *model.QuestAssignment, q model.Quest, userID, id string, now time.Time) (model.QuestAssignment, error) {
	const op = "lifecycle.accept"
	if !status(existing).PreAcceptance() {
		return model.QuestAssignment{}, errkind.NewKind(op, errkind.ErrInvalidTransition, reasonAlreadyInteracted)
	}
	a := fresh(q, userID, id, now)
	if existing != nil {
		a = *existing
		a.DueAt = q.DueAt
	}
	a.UpdatedAt = now
	if PastDue(q.DueAt, now) {
		a.Status = model.StatusMissedAccepted
		return a, nil
	}
	started := now
	a.Status = model.StatusInProgress
	a.StartedAt = &started
	return a, nil
}

// Decline moves NONE or ASSIGNED to DECLINED, regardless of the due date.
func Decline(existing *model.QuestAssignment, q model.Quest, userID, id string, now time.Time) (model.QuestAssignment, error) {
	const op = "lifecycle.decline"
	if !status(existing).PreAcceptance() {
		return model.QuestAssignment{}, errkind.NewKind(op, errkind.ErrInvalidTransition, reasonAlreadyInteracted)
	}
	a := fresh(q, userID, id, now)
	if existing != nil {
		a = *existing
	}
	a.Status = model.StatusDeclined
	a.UpdatedAt = now
	return a, nil
}

// CanSubmit reports whether the assignment accepts new evidence.
func CanSubmit(a *model.QuestAssignment) bool {
	return status(a) == model.StatusInProgress
}

// ValidatePayload checks that exactly one well-formed kind of evidence is set.
func ValidatePayload(p model.Payload) error {
	const op = "lifecycle.validate_payload"
	if p.Empty() {
		return errkind.NewKind(op, errkind.ErrValidation, "submission payload is empty")
	}
	switch p.Kind {
	case model.PayloadFile, model.PayloadText:
		return nil
	case model.PayloadLink:
		u, err := url.Parse(strings.TrimSpace(p.Value))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errkind.NewKind(op, errkind.ErrValidation, "link must be an absolute http(s) URL")
		}
		return nil
	default:
		return errkind.NewKindf(op, errkind.ErrValidation, "unknown payload kind %q", p.Kind)
	}
}

// Submit records evidence for an IN_PROGRESS assignment. An existing active
// submission is replaced in place, never duplicated; id is used otherwise.
func Submit(a *model.QuestAssignment, active *model.Submission, p model.Payload, id string, now time.Time) (model.QuestAssignment, model.Submission, error) {
	const op = "lifecycle.submit"
	if !CanSubmit(a) {
		if status(a) == model.StatusMissedAccepted {
			return model.QuestAssignment{}, model.Submission{}, errkind.NewKind(op, errkind.ErrInvalidTransition, "the deadline passed before this quest was accepted; it cannot be submitted")
		}
		return model.QuestAssignment{}, model.Submission{}, errkind.NewKindf(op, errkind.ErrInvalidTransition, "cannot submit while the quest is %s", status(a))
	}
	if err := ValidatePayload(p); err != nil {
		return model.QuestAssignment{}, model.Submission{}, err
	}

	sub := model.Submission{ID: id, UserID: a.UserID, QuestID: a.QuestID}
	if active != nil {
		sub = *active
	}
	sub.Status = model.SubmissionSubmitted
	sub.Payload = p
	sub.SubmittedAt = now

	next := *a
	next.Status = model.StatusSubmitted
	next.UpdatedAt = now
	return next, sub, nil
}

// Edit replaces the evidence of a submission still awaiting or in review.
func Edit(a *model.QuestAssignment, s *model.Submission, p model.Payload, now time.Time) (model.Submission, error) {
	const op = "lifecycle.edit"
	if status(a) != model.StatusSubmitted || s == nil {
		return model.Submission{}, errkind.NewKindf(op, errkind.ErrInvalidTransition, "cannot edit while the quest is %s", status(a))
	}
	if s.Status.Final() {
		return model.Submission{}, errkind.NewKindf(op, errkind.ErrInvalidTransition, "submission was already %s", s.Status)
	}
	if err := ValidatePayload(p); err != nil {
		return model.Submission{}, err
	}
	next := *s
	next.Payload = p
	next.SubmittedAt = now
	next.Status = model.SubmissionSubmitted
	return next, nil
}

// ShouldMarkMissed reports whether the deadline sweep moves a to MISSED.
// Only untouched ASSIGNED records qualify, so declined records are never
// marked missed.
func ShouldMarkMissed(a model.QuestAssignment, hasSubmission bool, now time.Time) bool {
	return a.Status == model.StatusAssigned && !hasSubmission && PastDue(a.DueAt, now)
}

// MarkMissed applies the sweep transition.
func MarkMissed(a model.QuestAssignment, now time.Time) model.QuestAssignment {
	a.Status = model.StatusMissed
	a.UpdatedAt = now
	return a
}
