package api

import (
	"time"

	service "github.com/okian/questlog/internal/app"
	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/internal/domain/progression"
)

type skillView struct {
	Name string `json:"name"`
	Tier int    `json:"tier"`
}

type questView struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	CreatorID string      `json:"creator_id"`
	DueAt     *time.Time  `json:"due_at,omitempty"`
	Mandatory bool        `json:"mandatory"`
	Skills    []skillView `json:"skills"`
	CreatedAt time.Time   `json:"created_at"`
}

func toQuestView(q model.Quest) questView {
	skills := make([]skillView, len(q.Skills))
	for i, s := range q.Skills {
		skills[i] = skillView{Name: s.Name, Tier: s.Tier}
	}
	return questView{
		ID:        q.ID,
		Title:     q.Title,
		CreatorID: q.CreatorID,
		DueAt:     q.DueAt,
		Mandatory: q.Mandatory,
		Skills:    skills,
		CreatedAt: q.CreatedAt,
	}
}

type assignmentView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	QuestID     string     `json:"quest_id"`
	Status      string     `json:"status"`
	AssignedAt  time.Time  `json:"assigned_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	IsMandatory bool       `json:"is_mandatory"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toAssignmentView(a model.QuestAssignment) assignmentView {
	return assignmentView{
		ID:          a.ID,
		UserID:      a.UserID,
		QuestID:     a.QuestID,
		Status:      string(a.Status),
		AssignedAt:  a.AssignedAt,
		StartedAt:   a.StartedAt,
		DueAt:       a.DueAt,
		IsMandatory: a.IsMandatory,
		UpdatedAt:   a.UpdatedAt,
	}
}

type acceptView struct {
	Assignment assignmentView `json:"assignment"`
	CanSubmit  bool           `json:"can_submit"`
	Notice     string         `json:"notice,omitempty"`
}

type payloadView struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type submissionView struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	QuestID     string      `json:"quest_id"`
	Status      string      `json:"status"`
	Payload     payloadView `json:"payload"`
	SubmittedAt time.Time   `json:"submitted_at"`
	ReviewedAt  *time.Time  `json:"reviewed_at,omitempty"`
	ReviewerID  string      `json:"reviewer_id,omitempty"`
	Feedback    string      `json:"feedback,omitempty"`
}

func toSubmissionView(s model.Submission) submissionView {
	return submissionView{
		ID:          s.ID,
		UserID:      s.UserID,
		QuestID:     s.QuestID,
		Status:      string(s.Status),
		Payload:     payloadView{Kind: string(s.Payload.Kind), Value: s.Payload.Value},
		SubmittedAt: s.SubmittedAt,
		ReviewedAt:  s.ReviewedAt,
		ReviewerID:  s.ReviewerID,
		Feedback:    s.Feedback,
	}
}

type awardView struct {
	SkillName             string    `json:"skill_name"`
	Tier                  int       `json:"tier"`
	BasePoints            int       `json:"base_points"`
	PerformanceLabel      string    `json:"performance_label"`
	PerformanceMultiplier float64   `json:"performance_multiplier"`
	AdjustedPoints        int       `json:"adjusted_points"`
	Notes                 string    `json:"notes,omitempty"`
	AwardedAt             time.Time `json:"awarded_at"`
}

type reviewView struct {
	Submission    submissionView `json:"submission"`
	Awards        []awardView    `json:"awards"`
	AlreadyScored bool           `json:"already_scored"`
}

func toReviewView(r service.ReviewResult) reviewView {
	awards := make([]awardView, len(r.Awards))
	for i, a := range r.Awards {
		awards[i] = awardView{
			SkillName:             a.SkillName,
			Tier:                  a.Tier,
			BasePoints:            a.BasePoints,
			PerformanceLabel:      a.PerformanceLabel,
			PerformanceMultiplier: a.PerformanceMultiplier,
			AdjustedPoints:        a.AdjustedPoints,
			Notes:                 a.Notes,
			AwardedAt:             a.AwardedAt,
		}
	}
	return reviewView{Submission: toSubmissionView(r.Submission), Awards: awards, AlreadyScored: r.AlreadyScored}
}

type countsView struct {
	Pending       int `json:"pending"`
	Submitted     int `json:"submitted"`
	NeedsRevision int `json:"needs_revision"`
	Missed        int `json:"missed"`
	Declined      int `json:"declined"`
	Graded        int `json:"graded"`
}

type queueView struct {
	Quest          questView        `json:"quest"`
	Counts         countsView       `json:"counts"`
	AwaitingReview []submissionView `json:"awaiting_review"`
}

func toQueueViews(qs []service.QuestQueue) []queueView {
	out := make([]queueView, len(qs))
	for i, q := range qs {
		subs := make([]submissionView, len(q.AwaitingReview))
		for j, s := range q.AwaitingReview {
			subs[j] = toSubmissionView(s)
		}
		out[i] = queueView{
			Quest:          toQuestView(q.Quest),
			Counts:         countsView(q.Counts),
			AwaitingReview: subs,
		}
	}
	return out
}

type statusView struct {
	UserID       string          `json:"user_id"`
	QuestID      string          `json:"quest_id"`
	Status       string          `json:"status"`
	DueAt        *time.Time      `json:"due_at,omitempty"`
	EffectiveDue *time.Time      `json:"effective_due,omitempty"`
	PastDue      bool            `json:"past_due"`
	CanSubmit    bool            `json:"can_submit"`
	Submission   *submissionView `json:"submission,omitempty"`
}

func toStatusView(v service.AssignmentView) statusView {
	out := statusView{
		UserID:       v.UserID,
		QuestID:      v.QuestID,
		Status:       string(v.Status),
		DueAt:        v.DueAt,
		EffectiveDue: v.EffectiveDue,
		PastDue:      v.PastDue,
		CanSubmit:    v.CanSubmit,
	}
	if v.Submission != nil {
		sv := toSubmissionView(*v.Submission)
		out.Submission = &sv
	}
	return out
}

type standingView struct {
	SkillName      string     `json:"skill_name"`
	TotalPoints    int        `json:"total_points"`
	Level          int        `json:"level"`
	Stage          string     `json:"stage"`
	ActivityStatus string     `json:"activity_status"`
	ProgressPct    float64    `json:"progress_percent"`
	XPInto         int        `json:"xp_into_level"`
	XPNeeded       int        `json:"xp_to_next_level"`
	LastAwardedAt  *time.Time `json:"last_awarded_at,omitempty"`
}

func toStandingViews(ss []progression.Standing) []standingView {
	out := make([]standingView, len(ss))
	for i, s := range ss {
		out[i] = standingView{
			SkillName:      s.SkillName,
			TotalPoints:    s.TotalPoints,
			Level:          s.Level,
			Stage:          string(s.Stage),
			ActivityStatus: string(s.ActivityStatus),
			ProgressPct:    s.Progress.Percent,
			XPInto:         s.Progress.XPInto,
			XPNeeded:       s.Progress.XPNeeded,
			LastAwardedAt:  s.LastAwardedAt,
		}
	}
	return out
}
