package repository

import (
	"time"

	"github.com/okian/questlog/internal/domain/model"
)

type questRow struct {
	ID        string     `gorm:"primaryKey;size:64"`
	Title     string     `gorm:"size:256;not null"`
	CreatorID string     `gorm:"size:64;index"`
	DueAt     *time.Time `gorm:"index"`
	Mandatory bool       `gorm:"not null;default:false"`
	CreatedAt time.Time  `gorm:"autoCreateTime:false;not null"`
}

func (questRow) TableName() string { return "quests" }

type questSkillRow struct {
	QuestID  string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"primaryKey;size:128"`
	Tier     int    `gorm:"not null"`
	Position int    `gorm:"not null"`
}

func (questSkillRow) TableName() string { return "quest_skills" }

type assignmentRow struct {
	ID          string     `gorm:"primaryKey;size:64"`
	UserID      string     `gorm:"size:64;not null;uniqueIndex:ux_assignment_user_quest"`
	QuestID     string     `gorm:"size:64;not null;uniqueIndex:ux_assignment_user_quest;index"`
	Status      string     `gorm:"size:32;not null"`
	AssignedAt  time.Time  `gorm:"not null"`
	StartedAt   *time.Time
	DueAt       *time.Time
	IsMandatory bool      `gorm:"not null;default:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;not null"`
}

func (assignmentRow) TableName() string { return "quest_assignments" }

type submissionRow struct {
	ID           string     `gorm:"primaryKey;size:64"`
	UserID       string     `gorm:"size:64;not null;uniqueIndex:ux_submission_user_quest"`
	QuestID      string     `gorm:"size:64;not null;uniqueIndex:ux_submission_user_quest;index"`
	Status       string     `gorm:"size:32;not null"`
	PayloadKind  string     `gorm:"size:16;not null"`
	PayloadValue string     `gorm:"type:text;not null"`
	SubmittedAt  time.Time  `gorm:"not null"`
	ReviewedAt   *time.Time
	ReviewerID   string `gorm:"size:64"`
	Feedback     string `gorm:"type:text"`
}

func (submissionRow) TableName() string { return "submissions" }

type awardRow struct {
	ID                    string    `gorm:"primaryKey;size:64"`
	SubmissionID          string    `gorm:"size:64;not null;uniqueIndex:ux_award_submission_skill"`
	SkillName             string    `gorm:"size:128;not null;uniqueIndex:ux_award_submission_skill"`
	UserID                string    `gorm:"size:64;not null;index"`
	Tier                  int       `gorm:"not null"`
	BasePoints            int       `gorm:"not null"`
	PerformanceLabel      string    `gorm:"size:32;not null"`
	PerformanceMultiplier float64   `gorm:"not null"`
	AdjustedPoints        int       `gorm:"not null"`
	Notes                 string    `gorm:"type:text"`
	AwardedAt             time.Time `gorm:"not null"`
}

func (awardRow) TableName() string { return "skill_awards" }

type ledgerRow struct {
	UserID        string `gorm:"primaryKey;size:64"`
	SkillName     string `gorm:"primaryKey;size:128"`
	TotalPoints   int    `gorm:"not null;default:0"`
	LastAwardedAt *time.Time
}

func (ledgerRow) TableName() string { return "skill_ledger_entries" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toQuestRow(q model.Quest) (questRow, []questSkillRow) {
	skills := make([]questSkillRow, len(q.Skills))
	for i, s := range q.Skills {
		skills[i] = questSkillRow{QuestID: q.ID, Name: s.Name, Tier: s.Tier, Position: i}
	}
	return questRow{
		ID:        q.ID,
		Title:     q.Title,
		CreatorID: q.CreatorID,
		DueAt:     utcPtr(q.DueAt),
		Mandatory: q.Mandatory,
		CreatedAt: q.CreatedAt.UTC(),
	}, skills
}

func (r questRow) toModel(skills []questSkillRow) model.Quest {
	q := model.Quest{
		ID:        r.ID,
		Title:     r.Title,
		CreatorID: r.CreatorID,
		DueAt:     utcPtr(r.DueAt),
		Mandatory: r.Mandatory,
		CreatedAt: r.CreatedAt.UTC(),
	}
	for _, s := range skills {
		q.Skills = append(q.Skills, model.SkillRequirement{Name: s.Name, Tier: s.Tier})
	}
	return q
}

func toAssignmentRow(a model.QuestAssignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		UserID:      a.UserID,
		QuestID:     a.QuestID,
		Status:      string(a.Status),
		AssignedAt:  a.AssignedAt.UTC(),
		StartedAt:   utcPtr(a.StartedAt),
		DueAt:       utcPtr(a.DueAt),
		IsMandatory: a.IsMandatory,
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

// toModel translates the stored status, including legacy spellings.
// Unknown values fall back to none so the record can be re-accepted.
func (r assignmentRow) toModel() model.QuestAssignment {
	status, ok := model.ParseAssignmentStatus(r.Status)
	if !ok {
		status = model.StatusNone
	}
	return model.QuestAssignment{
		ID:          r.ID,
		UserID:      r.UserID,
		QuestID:     r.QuestID,
		Status:      status,
		AssignedAt:  r.AssignedAt.UTC(),
		StartedAt:   utcPtr(r.StartedAt),
		DueAt:       utcPtr(r.DueAt),
		IsMandatory: r.IsMandatory,
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func toSubmissionRow(s model.Submission) submissionRow {
	return submissionRow{
		ID:           s.ID,
		UserID:       s.UserID,
		QuestID:      s.QuestID,
		Status:       string(s.Status),
		PayloadKind:  string(s.Payload.Kind),
		PayloadValue: s.Payload.Value,
		SubmittedAt:  s.SubmittedAt.UTC(),
		ReviewedAt:   utcPtr(s.ReviewedAt),
		ReviewerID:   s.ReviewerID,
		Feedback:     s.Feedback,
	}
}

// toModel translates the stored status. Unknown values are treated as
// submitted so the evidence is surfaced for review again.
func (r submissionRow) toModel() model.Submission {
	status, ok := model.ParseSubmissionStatus(r.Status)
	if !ok {
		status = model.SubmissionSubmitted
	}
	return model.Submission{
		ID:          r.ID,
		UserID:      r.UserID,
		QuestID:     r.QuestID,
		Status:      status,
		Payload:     model.Payload{Kind: model.PayloadKind(r.PayloadKind), Value: r.PayloadValue},
		SubmittedAt: r.SubmittedAt.UTC(),
		ReviewedAt:  utcPtr(r.ReviewedAt),
		ReviewerID:  r.ReviewerID,
		Feedback:    r.Feedback,
	}
}

func toAwardRow(a model.SkillAward) awardRow {
	return awardRow{
		ID:                    a.ID,
		SubmissionID:          a.SubmissionID,
		SkillName:             a.SkillName,
		UserID:                a.UserID,
		Tier:                  a.Tier,
		BasePoints:            a.BasePoints,
		PerformanceLabel:      a.PerformanceLabel,
		PerformanceMultiplier: a.PerformanceMultiplier,
		AdjustedPoints:        a.AdjustedPoints,
		Notes:                 a.Notes,
		AwardedAt:             a.AwardedAt.UTC(),
	}
}

func (r awardRow) toModel() model.SkillAward {
	return model.SkillAward{
		ID:                    r.ID,
		SubmissionID:          r.SubmissionID,
		UserID:                r.UserID,
		SkillName:             r.SkillName,
		Tier:                  r.Tier,
		BasePoints:            r.BasePoints,
		PerformanceLabel:      r.PerformanceLabel,
		PerformanceMultiplier: r.PerformanceMultiplier,
		AdjustedPoints:        r.AdjustedPoints,
		Notes:                 r.Notes,
		AwardedAt:             r.AwardedAt.UTC(),
	}
}

func (r ledgerRow) toModel() model.SkillLedgerEntry {
	return model.SkillLedgerEntry{
		UserID:        r.UserID,
		SkillName:     r.SkillName,
		TotalPoints:   r.TotalPoints,
		LastAwardedAt: utcPtr(r.LastAwardedAt),
	}
}
