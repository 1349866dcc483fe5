package model

import "strings"

// AssignmentStatus is the lifecycle state of one (user, quest) record.
type AssignmentStatus string

// Assignment states. StatusNone stands for "no record exists".
const (
	StatusNone           AssignmentStatus = "none"
	StatusAssigned       AssignmentStatus = "assigned"
	StatusInProgress     AssignmentStatus = "in_progress"
	StatusSubmitted      AssignmentStatus = "submitted"
	StatusGraded         AssignmentStatus = "graded"
	StatusDeclined       AssignmentStatus = "declined"
	StatusMissed         AssignmentStatus = "missed"
	StatusMissedAccepted AssignmentStatus = "missed_accepted"
)

// legacyAssignmentStatus maps every stored spelling, including historical
// synonyms, to its canonical state.
var legacyAssignmentStatus = map[string]AssignmentStatus{
	"none":            StatusNone,
	"":                StatusNone,
	"assigned":        StatusAssigned,
	"pending":         StatusAssigned,
	"in_progress":     StatusInProgress,
	"accepted":        StatusInProgress,
	"started":         StatusInProgress,
	"submitted":       StatusSubmitted,
	"graded":          StatusGraded,
	"completed":       StatusGraded,
	"declined":        StatusDeclined,
	"cancelled":       StatusDeclined,
	"canceled":        StatusDeclined,
	"missed":          StatusMissed,
	"missed_accepted": StatusMissedAccepted,
	"accepted_missed": StatusMissedAccepted,
	"late":            StatusMissedAccepted,
}

// ParseAssignmentStatus normalizes a stored status value.
func ParseAssignmentStatus(s string) (AssignmentStatus, bool) {
	st, ok := legacyAssignmentStatus[normalize(s)]
	return st, ok
}

// PreAcceptance reports whether the user has not yet acted on the quest.
func (s AssignmentStatus) PreAcceptance() bool {
	return s == StatusNone || s == StatusAssigned
}

// Terminal reports whether no user action can move the record any further.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case StatusDeclined, StatusMissed, StatusMissedAccepted, StatusGraded:
		return true
	}
	return false
}

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

// Submission states.
const (
	SubmissionPending       SubmissionStatus = "pending"
	SubmissionSubmitted     SubmissionStatus = "submitted"
	SubmissionUnderReview   SubmissionStatus = "under_review"
	SubmissionApproved      SubmissionStatus = "approved"
	SubmissionRejected      SubmissionStatus = "rejected"
	SubmissionNeedsRevision SubmissionStatus = "needs_revision"
)

var legacySubmissionStatus = map[string]SubmissionStatus{
	"pending":        SubmissionPending,
	"submitted":      SubmissionSubmitted,
	"under_review":   SubmissionUnderReview,
	"in_review":      SubmissionUnderReview,
	"reviewing":      SubmissionUnderReview,
	"approved":       SubmissionApproved,
	"graded":         SubmissionApproved,
	"rejected":       SubmissionRejected,
	"needs_revision": SubmissionNeedsRevision,
	"revision":       SubmissionNeedsRevision,
	"revise":         SubmissionNeedsRevision,
}

// ParseSubmissionStatus normalizes a stored submission status value.
func ParseSubmissionStatus(s string) (SubmissionStatus, bool) {
	st, ok := legacySubmissionStatus[normalize(s)]
	return st, ok
}

// Final reports whether a reviewer has closed the submission.
func (s SubmissionStatus) Final() bool {
	return s == SubmissionApproved || s == SubmissionRejected
}

// AwaitingReview reports whether the submission sits in a reviewer's queue.
func (s SubmissionStatus) AwaitingReview() bool {
	return s == SubmissionSubmitted || s == SubmissionUnderReview || s == SubmissionPending
}

// Decision is a reviewer verdict.
type Decision string

// Reviewer verdicts.
const (
	DecisionApproved      Decision = "approved"
	DecisionRejected      Decision = "rejected"
	DecisionNeedsRevision Decision = "needs_revision"
	DecisionUnderReview   Decision = "under_review"
)

// ParseDecision validates a reviewer verdict.
func ParseDecision(s string) (Decision, bool) {
	switch d := Decision(normalize(s)); d {
	case DecisionApproved, DecisionRejected, DecisionNeedsRevision, DecisionUnderReview:
		return d, true
	}
	return "", false
}

// SubmissionStatus returns the submission state the verdict produces.
func (d Decision) SubmissionStatus() SubmissionStatus {
	return SubmissionStatus(d)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
