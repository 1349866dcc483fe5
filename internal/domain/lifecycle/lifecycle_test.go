package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/lifecycle"
	"github.com/okian/questlog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func questDue(due string) model.Quest {
	return model.Quest{ID: "q1", Title: "Ship it", CreatorID: "lead", DueAt: ptr(at(due))}
}

func TestEffectiveDue(t *testing.T) {
	Convey("Given a midnight-only due date", t, func() {
		due := at("2025-01-10 00:00:00")

		Convey("Then the effective instant is the end of that day", func() {
			So(lifecycle.EffectiveDue(due).Equal(at("2025-01-10 23:59:59")), ShouldBeTrue)
		})
	})

	Convey("Given a due date with a time of day", t, func() {
		due := at("2025-01-10 17:00:00")

		Convey("Then the effective instant is unchanged", func() {
			So(lifecycle.EffectiveDue(due).Equal(due), ShouldBeTrue)
		})
	})

	Convey("Given no due date", t, func() {
		So(lifecycle.PastDue(nil, at("2099-01-01 00:00:00")), ShouldBeFalse)
	})
}

func TestAccept(t *testing.T) {
	Convey("Given a quest due 2025-01-10 00:00:00", t, func() {
		q := questDue("2025-01-10 00:00:00")

		Convey("When accepting at 20:00 on the due day", func() {
			a, err := lifecycle.Accept(nil, q, "u1", "a1", at("2025-01-10 20:00:00"))

			Convey("Then the assignment is in progress and started", func() {
				So(err, ShouldBeNil)
				So(a.Status, ShouldEqual, model.StatusInProgress)
				So(a.StartedAt, ShouldNotBeNil)
				So(a.ID, ShouldEqual, "a1")
				So(lifecycle.CanSubmit(&a), ShouldBeTrue)
			})
		})

		Convey("When accepting one second into the next day", func() {
			a, err := lifecycle.Accept(nil, q, "u1", "a1", at("2025-01-11 00:00:01"))

			Convey("Then the assignment is accepted as missed", func() {
				So(err, ShouldBeNil)
				So(a.Status, ShouldEqual, model.StatusMissedAccepted)
				So(a.StartedAt, ShouldBeNil)
				So(lifecycle.CanSubmit(&a), ShouldBeFalse)
			})
		})

		Convey("When accepting an explicitly assigned record", func() {
			assigned, err := lifecycle.Assign(nil, q, "u1", "a1", at("2025-01-05 09:00:00"))
			So(err, ShouldBeNil)
			a, err := lifecycle.Accept(&assigned, q, "u1", "ignored", at("2025-01-06 09:00:00"))

			Convey("Then the existing record moves forward", func() {
				So(err, ShouldBeNil)
				So(a.ID, ShouldEqual, "a1")
				So(a.Status, ShouldEqual, model.StatusInProgress)
				So(assigned.Status, ShouldEqual, model.StatusAssigned)
			})
		})

		Convey("When accepting twice", func() {
			a, _ := lifecycle.Accept(nil, q, "u1", "a1", at("2025-01-05 09:00:00"))
			_, err := lifecycle.Accept(&a, q, "u1", "a2", at("2025-01-05 09:01:00"))

			Convey("Then the second call is an invalid transition", func() {
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
				So(errkind.Reason(err), ShouldEqual, "already interacted with this quest")
			})
		})
	})
}

func TestDeclineAndMissed(t *testing.T) {
	Convey("Given an assigned quest", t, func() {
		q := questDue("2025-01-10 00:00:00")
		assigned, _ := lifecycle.Assign(nil, q, "u1", "a1", at("2025-01-01 09:00:00"))

		Convey("When declining after the due date", func() {
			declined, err := lifecycle.Decline(&assigned, q, "u1", "", at("2025-02-01 09:00:00"))

			Convey("Then it is declined and the sweep never marks it missed", func() {
				So(err, ShouldBeNil)
				So(declined.Status, ShouldEqual, model.StatusDeclined)
				So(lifecycle.ShouldMarkMissed(declined, false, at("2025-03-01 00:00:00")), ShouldBeFalse)
			})

			Convey("And it cannot be accepted or submitted", func() {
				_, err := lifecycle.Accept(&declined, q, "u1", "", at("2025-02-01 10:00:00"))
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)

				_, _, err = lifecycle.Submit(&declined, nil, model.Payload{Kind: model.PayloadText, Value: "done"}, "s1", at("2025-02-01 10:00:00"))
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When the sweep runs before the effective due instant", func() {
			So(lifecycle.ShouldMarkMissed(assigned, false, at("2025-01-10 23:59:59")), ShouldBeFalse)
		})

		Convey("When the sweep runs after the effective due instant", func() {
			So(lifecycle.ShouldMarkMissed(assigned, false, at("2025-01-11 00:00:00")), ShouldBeTrue)
			missed := lifecycle.MarkMissed(assigned, at("2025-01-11 00:00:00"))
			So(missed.Status, ShouldEqual, model.StatusMissed)

			Convey("Then declining the missed record is rejected", func() {
				_, err := lifecycle.Decline(&missed, q, "u1", "", at("2025-01-12 00:00:00"))
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When an in-progress record is declined", func() {
			started, _ := lifecycle.Accept(&assigned, q, "u1", "", at("2025-01-02 09:00:00"))
			_, err := lifecycle.Decline(&started, q, "u1", "", at("2025-01-02 10:00:00"))
			So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestSubmitAndEdit(t *testing.T) {
	Convey("Given an in-progress assignment", t, func() {
		q := model.Quest{ID: "q1", CreatorID: "lead"}
		a, _ := lifecycle.Accept(nil, q, "u1", "a1", at("2025-01-02 09:00:00"))
		payload := model.Payload{Kind: model.PayloadLink, Value: "https://git.example.com/pr/1"}

		Convey("When submitting a valid link", func() {
			next, sub, err := lifecycle.Submit(&a, nil, payload, "s1", at("2025-01-03 09:00:00"))

			Convey("Then the assignment is submitted", func() {
				So(err, ShouldBeNil)
				So(next.Status, ShouldEqual, model.StatusSubmitted)
				So(sub.ID, ShouldEqual, "s1")
				So(sub.Status, ShouldEqual, model.SubmissionSubmitted)
			})

			Convey("And editing replaces the payload and submission time", func() {
				edited, err := lifecycle.Edit(&next, &sub, model.Payload{Kind: model.PayloadText, Value: "v2"}, at("2025-01-04 09:00:00"))
				So(err, ShouldBeNil)
				So(edited.ID, ShouldEqual, "s1")
				So(edited.Payload.Value, ShouldEqual, "v2")
				So(edited.SubmittedAt.Equal(at("2025-01-04 09:00:00")), ShouldBeTrue)
			})

			Convey("And editing an approved submission is rejected", func() {
				graded, approved, err := lifecycle.ApplyReview(next, sub, model.DecisionApproved, "", "lead", at("2025-01-05 09:00:00"))
				So(err, ShouldBeNil)
				_, err = lifecycle.Edit(&graded, &approved, payload, at("2025-01-06 09:00:00"))
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When the payload is malformed", func() {
			_, _, err := lifecycle.Submit(&a, nil, model.Payload{Kind: model.PayloadLink, Value: "not a url"}, "s1", at("2025-01-03 09:00:00"))
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)

			_, _, err = lifecycle.Submit(&a, nil, model.Payload{Kind: model.PayloadText, Value: "   "}, "s1", at("2025-01-03 09:00:00"))
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)

			_, _, err = lifecycle.Submit(&a, nil, model.Payload{Kind: "video", Value: "x"}, "s1", at("2025-01-03 09:00:00"))
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("When nothing was accepted", func() {
			_, _, err := lifecycle.Submit(nil, nil, payload, "s1", at("2025-01-03 09:00:00"))
			So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestApplyReview(t *testing.T) {
	Convey("Given a submitted assignment", t, func() {
		q := model.Quest{ID: "q1", CreatorID: "lead"}
		a, _ := lifecycle.Accept(nil, q, "u1", "a1", at("2025-01-02 09:00:00"))
		a, sub, _ := lifecycle.Submit(&a, nil, model.Payload{Kind: model.PayloadText, Value: "done"}, "s1", at("2025-01-03 09:00:00"))
		now := at("2025-01-04 09:00:00")

		Convey("When the reviewer starts reviewing", func() {
			na, ns, err := lifecycle.ApplyReview(a, sub, model.DecisionUnderReview, "looking", "lead", now)
			So(err, ShouldBeNil)
			So(na.Status, ShouldEqual, model.StatusSubmitted)
			So(ns.Status, ShouldEqual, model.SubmissionUnderReview)
			So(ns.ReviewerID, ShouldEqual, "lead")
			So(ns.ReviewedAt, ShouldNotBeNil)
		})

		Convey("When the reviewer approves", func() {
			na, ns, err := lifecycle.ApplyReview(a, sub, model.DecisionApproved, "great", "lead", now)
			So(err, ShouldBeNil)
			So(na.Status, ShouldEqual, model.StatusGraded)
			So(ns.Status, ShouldEqual, model.SubmissionApproved)

			Convey("Then approving again is already processed", func() {
				_, _, err := lifecycle.ApplyReview(na, ns, model.DecisionApproved, "", "lead", now)
				So(errors.Is(err, errkind.ErrAlreadyProcessed), ShouldBeTrue)
			})

			Convey("Then flipping to rejected is invalid", func() {
				_, _, err := lifecycle.ApplyReview(na, ns, model.DecisionRejected, "", "lead", now)
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
			})

			Convey("Then requesting a revision re-opens it", func() {
				ra, rs, err := lifecycle.ApplyReview(na, ns, model.DecisionNeedsRevision, "add tests", "lead", now)
				So(err, ShouldBeNil)
				So(ra.Status, ShouldEqual, model.StatusSubmitted)
				So(rs.Status, ShouldEqual, model.SubmissionNeedsRevision)

				edited, err := lifecycle.Edit(&ra, &rs, model.Payload{Kind: model.PayloadText, Value: "with tests"}, now)
				So(err, ShouldBeNil)
				So(edited.Status, ShouldEqual, model.SubmissionSubmitted)
			})
		})

		Convey("When the assignment was never submitted", func() {
			fresh, _ := lifecycle.Accept(nil, q, "u2", "a2", now)
			_, _, err := lifecycle.ApplyReview(fresh, sub, model.DecisionApproved, "", "lead", now)
			So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given assignments of a quest due 2025-01-10", t, func() {
		q := questDue("2025-01-10 00:00:00")
		before := at("2025-01-10 12:00:00")
		after := at("2025-01-11 12:00:00")
		assigned, _ := lifecycle.Assign(nil, q, "u1", "a1", at("2025-01-01 09:00:00"))
		declined, _ := lifecycle.Decline(nil, q, "u2", "a2", at("2025-01-01 09:00:00"))
		started, _ := lifecycle.Accept(nil, q, "u3", "a3", at("2025-01-01 09:00:00"))
		submitted, sub, _ := lifecycle.Submit(&started, nil, model.Payload{Kind: model.PayloadText, Value: "x"}, "s3", at("2025-01-02 09:00:00"))

		Convey("Then pending and missed are split by the effective due instant", func() {
			So(lifecycle.Classify(assigned, nil, before), ShouldEqual, lifecycle.BucketPending)
			So(lifecycle.Classify(assigned, nil, after), ShouldEqual, lifecycle.BucketMissed)
			So(lifecycle.Classify(started, nil, before), ShouldEqual, lifecycle.BucketPending)
		})

		Convey("Then declined stays declined after the due date", func() {
			So(lifecycle.Classify(declined, nil, after), ShouldEqual, lifecycle.BucketDeclined)
		})

		Convey("Then evidence moves a record to submitted", func() {
			So(lifecycle.Classify(submitted, &sub, after), ShouldEqual, lifecycle.BucketSubmitted)
		})
	})
}
