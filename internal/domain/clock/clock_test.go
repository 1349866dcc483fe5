package clock_test

import (
	"testing"
	"time"

	"github.com/okian/questlog/internal/domain/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClocks(t *testing.T) {
	Convey("The system clock reports UTC", t, func() {
		So(clock.System{}.Now().Location(), ShouldEqual, time.UTC)
	})

	Convey("Given a manual clock", t, func() {
		loc := time.FixedZone("UTC+2", 2*60*60)
		start := time.Date(2025, 1, 10, 2, 0, 0, 0, loc)
		c := clock.NewManual(start)

		Convey("It is frozen and normalized to UTC", func() {
			So(c.Now().Equal(start), ShouldBeTrue)
			So(c.Now().Location(), ShouldEqual, time.UTC)
			So(c.Now().Hour(), ShouldEqual, 0)
		})

		Convey("It moves only when told", func() {
			c.Advance(90 * time.Minute)
			So(c.Now().Equal(start.Add(90*time.Minute)), ShouldBeTrue)

			target := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
			c.Set(target)
			So(c.Now().Equal(target), ShouldBeTrue)
		})
	})
}
