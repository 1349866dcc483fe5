// Package model contains the quest domain records passed between layers.
package model

import (
	"strings"
	"time"
)

// SkillRequirement attaches a skill at a difficulty tier to a quest.
type SkillRequirement struct {
	Name string
	Tier int
}

// Quest is read-only metadata supplied by the quest catalogue.
type Quest struct {
	ID        string
	Title     string
	CreatorID string
	DueAt     *time.Time
	Mandatory bool
	Skills    []SkillRequirement
	CreatedAt time.Time
}

// QuestAssignment is the per (user, quest) lifecycle record. It is never
// deleted so missed and declined history stays queryable.
type QuestAssignment struct {
	ID          string
	UserID      string
	QuestID     string
	Status      AssignmentStatus
	AssignedAt  time.Time
	StartedAt   *time.Time
	DueAt       *time.Time
	IsMandatory bool
	UpdatedAt   time.Time
}

// PayloadKind says which field of a Payload is authoritative.
type PayloadKind string

// Payload kinds.
const (
	PayloadFile PayloadKind = "file"
	PayloadLink PayloadKind = "link"
	PayloadText PayloadKind = "text"
)

// Payload is the evidence attached to a submission: exactly one of a file
// reference, an external link or free text.
type Payload struct {
	Kind  PayloadKind
	Value string
}

// Empty reports whether no evidence is present.
func (p Payload) Empty() bool {
	return strings.TrimSpace(p.Value) == ""
}

// Submission is the single active piece of evidence for a (user, quest).
type Submission struct {
	ID          string
	UserID      string
	QuestID     string
	Status      SubmissionStatus
	Payload     Payload
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	ReviewerID  string
	Feedback    string
}

// SkillAward is an immutable audit line: points granted for one skill on one
// approved submission.
type SkillAward struct {
	ID                    string
	SubmissionID          string
	UserID                string
	SkillName             string
	Tier                  int
	BasePoints            int
	PerformanceLabel      string
	PerformanceMultiplier float64
	AdjustedPoints        int
	Notes                 string
	AwardedAt             time.Time
}

// SkillLedgerEntry is the raw per (user, skill) aggregate. Level, stage and
// activity status are derived on read and never stored.
type SkillLedgerEntry struct {
	UserID        string
	SkillName     string
	TotalPoints   int
	LastAwardedAt *time.Time
}
