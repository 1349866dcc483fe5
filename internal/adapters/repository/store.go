// Package repository persists quests, assignments, submissions, awards and
// skill ledgers behind a transactional unit of work.
package repository

import (
	"context"
	"time"

	"github.com/okian/questlog/internal/domain/model"
)

// Store runs units of work against the quest state.
//
// Update runs fn in a read-write transaction: either every write made
// through the Tx is committed or none is. fn may be invoked more than once
// when the backend retries a transient failure, so it must not have side
// effects outside the Tx. View runs fn in a read-only transaction.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of reads and writes available inside a unit of work.
// Lookups of missing rows return ErrNotFound.
type Tx interface {
	Quest(ctx context.Context, id string) (model.Quest, error)
	Quests(ctx context.Context) ([]model.Quest, error)
	// PutQuest inserts a quest. Returns ErrConflict when the id exists.
	PutQuest(ctx context.Context, q model.Quest) error

	// Assignment returns the (user, quest) record. Inside Update the row
	// stays locked until the transaction ends.
	Assignment(ctx context.Context, userID, questID string) (model.QuestAssignment, error)
	AssignmentsForQuest(ctx context.Context, questID string) ([]model.QuestAssignment, error)
	// PutAssignment inserts or replaces the (user, quest) record. A
	// concurrent insert of the same pair returns ErrConflict.
	PutAssignment(ctx context.Context, a model.QuestAssignment) error

	Submission(ctx context.Context, id string) (model.Submission, error)
	// ActiveSubmission returns the single submission kept per (user, quest).
	ActiveSubmission(ctx context.Context, userID, questID string) (model.Submission, error)
	SubmissionsForQuest(ctx context.Context, questID string) ([]model.Submission, error)
	PutSubmission(ctx context.Context, s model.Submission) error

	// InsertAward stores a if no award exists for its (submission, skill)
	// pair and reports whether a row was written.
	InsertAward(ctx context.Context, a model.SkillAward) (bool, error)
	Awards(ctx context.Context, submissionID string) ([]model.SkillAward, error)

	// FoldLedger atomically adds points to the (user, skill) total and
	// advances its last award time.
	FoldLedger(ctx context.Context, userID, skill string, points int, at time.Time) error
	LedgerEntries(ctx context.Context, userID string) ([]model.SkillLedgerEntry, error)
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
