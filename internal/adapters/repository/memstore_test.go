package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/questlog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, func() Store { return NewMemoryStore() })
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a closed memory store", t, func() {
		s := NewMemoryStore()
		So(s.Close(), ShouldBeNil)

		Convey("Then every unit of work fails with ErrClosed", func() {
			So(errors.Is(s.Update(ctx, func(Tx) error { return nil }), ErrClosed), ShouldBeTrue)
			So(errors.Is(s.View(ctx, func(Tx) error { return nil }), ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		s := NewMemoryStore()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		Convey("Then fn is never called", func() {
			called := false
			err := s.Update(cctx, func(Tx) error { called = true; return nil })
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(called, ShouldBeFalse)
		})
	})

	Convey("Given concurrent folds on one ledger entry", t, func() {
		s := NewMemoryStore()
		const writers = 50

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.Update(ctx, func(tx Tx) error {
					return tx.FoldLedger(ctx, "u1", "go", 2, t0.Add(time.Duration(i)*time.Minute))
				})
			}(i)
		}
		wg.Wait()

		Convey("Then no update is lost", func() {
			So(s.View(ctx, func(tx Tx) error {
				entries, err := tx.LedgerEntries(ctx, "u1")
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].TotalPoints, ShouldEqual, 2*writers)
				So(entries[0].LastAwardedAt.Equal(t0.Add((writers-1)*time.Minute)), ShouldBeTrue)
				return nil
			}), ShouldBeNil)
		})
	})

	Convey("Given quests returned from the store", t, func() {
		s := NewMemoryStore()
		So(s.Update(ctx, func(tx Tx) error { return tx.PutQuest(ctx, sampleQuest("q1", t0)) }), ShouldBeNil)

		Convey("Then mutating a returned copy does not change the store", func() {
			So(s.View(ctx, func(tx Tx) error {
				q, _ := tx.Quest(ctx, "q1")
				q.Skills[0] = model.SkillRequirement{Name: "changed", Tier: 5}
				again, _ := tx.Quest(ctx, "q1")
				So(again.Skills[0].Name, ShouldEqual, "go")
				return nil
			}), ShouldBeNil)
		})
	})
}
