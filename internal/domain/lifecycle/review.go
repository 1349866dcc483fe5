package lifecycle

import (
	"time"

	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/model"
)

// ApplyReview applies a reviewer verdict. Approved and rejected close the
// submission and grade the assignment. A closed submission can only be
// re-opened with needs_revision; repeating its verdict is reported as
// already processed.
func ApplyReview(a model.QuestAssignment, s model.Submission, d model.Decision, feedback, reviewerID string, now time.Time) (model.QuestAssignment, model.Submission, error) {
	const op = "lifecycle.review"
	if a.Status != model.StatusSubmitted && a.Status != model.StatusGraded {
		return a, s, errkind.NewKindf(op, errkind.ErrInvalidTransition, "submission is not open for review (quest is %s)", a.Status)
	}
	if s.Status.Final() {
		switch {
		case d.SubmissionStatus() == s.Status:
			return a, s, errkind.NewKindf(op, errkind.ErrAlreadyProcessed, "submission was already %s", s.Status)
		case d != model.DecisionNeedsRevision:
			return a, s, errkind.NewKindf(op, errkind.ErrInvalidTransition, "submission was already %s", s.Status)
		}
	}

	reviewed := now
	s.Status = d.SubmissionStatus()
	s.Feedback = feedback
	s.ReviewerID = reviewerID
	s.ReviewedAt = &reviewed

	if s.Status.Final() {
		a.Status = model.StatusGraded
	} else {
		a.Status = model.StatusSubmitted
	}
	a.UpdatedAt = now
	return a, s, nil
}

// Bucket is the reviewer-queue classification of one assignment.
type Bucket string

// Buckets. They are disjoint by construction.
const (
	BucketPending       Bucket = "pending"
	BucketSubmitted     Bucket = "submitted"
	BucketNeedsRevision Bucket = "needs_revision"
	BucketMissed        Bucket = "missed"
	BucketDeclined      Bucket = "declined"
	BucketGraded        Bucket = "graded"
)

// Classify places an assignment in exactly one bucket. Pending and missed
// share a predicate (not declined, no evidence) and differ only by whether
// the effective due instant has passed.
func Classify(a model.QuestAssignment, sub *model.Submission, now time.Time) Bucket {
	hasPayload := sub != nil && !sub.Payload.Empty()
	switch {
	case a.Status == model.StatusDeclined:
		return BucketDeclined
	case a.Status == model.StatusGraded:
		return BucketGraded
	case hasPayload && sub.Status == model.SubmissionNeedsRevision:
		return BucketNeedsRevision
	case hasPayload:
		return BucketSubmitted
	case a.Status == model.StatusMissed || a.Status == model.StatusMissedAccepted:
		return BucketMissed
	case PastDue(a.DueAt, now):
		return BucketMissed
	default:
		return BucketPending
	}
}
