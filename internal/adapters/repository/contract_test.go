package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/questlog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	t0     = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	errBad = errors.New("boom")
)

func sampleQuest(id string, created time.Time) model.Quest {
	due := created.Add(48 * time.Hour)
	return model.Quest{
		ID:        id,
		Title:     "Quest " + id,
		CreatorID: "creator",
		DueAt:     &due,
		Mandatory: true,
		Skills: []model.SkillRequirement{
			{Name: "go", Tier: 3},
			{Name: "sql", Tier: 1},
		},
		CreatedAt: created,
	}
}

// storeContract runs the behaviour every Store implementation shares.
func storeContract(t *testing.T, open func() Store) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := open()
		Reset(func() { _ = s.Close() })

		Convey("Quests round trip with ordered skills", func() {
			So(s.Update(ctx, func(tx Tx) error {
				if err := tx.PutQuest(ctx, sampleQuest("q2", t0.Add(time.Hour))); err != nil {
					return err
				}
				return tx.PutQuest(ctx, sampleQuest("q1", t0))
			}), ShouldBeNil)

			err := s.Update(ctx, func(tx Tx) error { return tx.PutQuest(ctx, sampleQuest("q1", t0)) })
			So(errors.Is(err, ErrConflict), ShouldBeTrue)

			So(s.View(ctx, func(tx Tx) error {
				q, err := tx.Quest(ctx, "q1")
				So(err, ShouldBeNil)
				So(q.Title, ShouldEqual, "Quest q1")
				So(q.Mandatory, ShouldBeTrue)
				So(q.Skills, ShouldResemble, []model.SkillRequirement{{Name: "go", Tier: 3}, {Name: "sql", Tier: 1}})
				So(q.DueAt.Equal(t0.Add(48*time.Hour)), ShouldBeTrue)

				all, err := tx.Quests(ctx)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 2)
				So(all[0].ID, ShouldEqual, "q1")
				So(all[1].ID, ShouldEqual, "q2")

				_, err = tx.Quest(ctx, "missing")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				return nil
			}), ShouldBeNil)
		})

		Convey("Assignments are keyed by user and quest", func() {
			a := model.QuestAssignment{
				ID: "a1", UserID: "u1", QuestID: "q1",
				Status: model.StatusAssigned, AssignedAt: t0, UpdatedAt: t0,
			}
			So(s.Update(ctx, func(tx Tx) error { return tx.PutAssignment(ctx, a) }), ShouldBeNil)

			started := t0.Add(time.Hour)
			a.Status = model.StatusInProgress
			a.StartedAt = &started
			a.UpdatedAt = started
			So(s.Update(ctx, func(tx Tx) error { return tx.PutAssignment(ctx, a) }), ShouldBeNil)

			So(s.View(ctx, func(tx Tx) error {
				got, err := tx.Assignment(ctx, "u1", "q1")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "a1")
				So(got.Status, ShouldEqual, model.StatusInProgress)
				So(got.StartedAt.Equal(started), ShouldBeTrue)

				list, err := tx.AssignmentsForQuest(ctx, "q1")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)

				_, err = tx.Assignment(ctx, "u2", "q1")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				return nil
			}), ShouldBeNil)
		})

		Convey("One active submission is kept per user and quest", func() {
			sub := model.Submission{
				ID: "s1", UserID: "u1", QuestID: "q1",
				Status:      model.SubmissionSubmitted,
				Payload:     model.Payload{Kind: model.PayloadText, Value: "v1"},
				SubmittedAt: t0,
			}
			So(s.Update(ctx, func(tx Tx) error { return tx.PutSubmission(ctx, sub) }), ShouldBeNil)

			sub.Payload.Value = "v2"
			So(s.Update(ctx, func(tx Tx) error { return tx.PutSubmission(ctx, sub) }), ShouldBeNil)

			other := sub
			other.ID = "s2"
			err := s.Update(ctx, func(tx Tx) error { return tx.PutSubmission(ctx, other) })
			So(errors.Is(err, ErrConflict), ShouldBeTrue)

			So(s.View(ctx, func(tx Tx) error {
				got, err := tx.ActiveSubmission(ctx, "u1", "q1")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "s1")
				So(got.Payload.Value, ShouldEqual, "v2")

				list, err := tx.SubmissionsForQuest(ctx, "q1")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)
				return nil
			}), ShouldBeNil)
		})

		Convey("Awards are written once per submission and skill", func() {
			award := model.SkillAward{
				ID: "w1", SubmissionID: "s1", UserID: "u1", SkillName: "go",
				Tier: 3, BasePoints: 60, PerformanceLabel: "exceeds_expectations",
				PerformanceMultiplier: 1.25, AdjustedPoints: 75, AwardedAt: t0,
			}
			var first, second bool
			So(s.Update(ctx, func(tx Tx) error {
				var err error
				first, err = tx.InsertAward(ctx, award)
				return err
			}), ShouldBeNil)
			award.ID = "w2"
			So(s.Update(ctx, func(tx Tx) error {
				var err error
				second, err = tx.InsertAward(ctx, award)
				return err
			}), ShouldBeNil)

			So(first, ShouldBeTrue)
			So(second, ShouldBeFalse)
			So(s.View(ctx, func(tx Tx) error {
				list, err := tx.Awards(ctx, "s1")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)
				So(list[0].ID, ShouldEqual, "w1")
				So(list[0].AdjustedPoints, ShouldEqual, 75)
				return nil
			}), ShouldBeNil)
		})

		Convey("Ledger folds add points and keep the latest award time", func() {
			later := t0.Add(24 * time.Hour)
			So(s.Update(ctx, func(tx Tx) error {
				if err := tx.FoldLedger(ctx, "u1", "go", 75, later); err != nil {
					return err
				}
				if err := tx.FoldLedger(ctx, "u1", "go", 40, t0); err != nil {
					return err
				}
				return tx.FoldLedger(ctx, "u1", "api", 20, t0)
			}), ShouldBeNil)
			So(s.Update(ctx, func(tx Tx) error { return tx.FoldLedger(ctx, "u1", "go", 10, t0) }), ShouldBeNil)

			So(s.View(ctx, func(tx Tx) error {
				entries, err := tx.LedgerEntries(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].SkillName, ShouldEqual, "api")
				So(entries[1].SkillName, ShouldEqual, "go")
				So(entries[1].TotalPoints, ShouldEqual, 125)
				So(entries[1].LastAwardedAt.Equal(later), ShouldBeTrue)

				none, err := tx.LedgerEntries(ctx, "u2")
				So(err, ShouldBeNil)
				So(len(none), ShouldEqual, 0)
				return nil
			}), ShouldBeNil)
		})

		Convey("A failed unit of work leaves no trace", func() {
			award := model.SkillAward{ID: "w1", SubmissionID: "s9", UserID: "u1", SkillName: "go", AdjustedPoints: 5, AwardedAt: t0}
			err := s.Update(ctx, func(tx Tx) error {
				if err := tx.PutQuest(ctx, sampleQuest("q9", t0)); err != nil {
					return err
				}
				if _, err := tx.InsertAward(ctx, award); err != nil {
					return err
				}
				if err := tx.FoldLedger(ctx, "u1", "go", 5, t0); err != nil {
					return err
				}
				return errBad
			})
			So(errors.Is(err, errBad), ShouldBeTrue)

			So(s.View(ctx, func(tx Tx) error {
				_, err := tx.Quest(ctx, "q9")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				entries, err := tx.LedgerEntries(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 0)
				return nil
			}), ShouldBeNil)

			var inserted bool
			So(s.Update(ctx, func(tx Tx) error {
				var err error
				inserted, err = tx.InsertAward(ctx, award)
				return err
			}), ShouldBeNil)
			So(inserted, ShouldBeTrue)
		})

		Convey("Writes inside View are refused", func() {
			err := s.View(ctx, func(tx Tx) error { return tx.PutQuest(ctx, sampleQuest("q1", t0)) })
			So(errors.Is(err, ErrReadOnly), ShouldBeTrue)
		})
	})
}
