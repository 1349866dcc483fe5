package errkind_test

import (
	"errors"
	"testing"

	"github.com/okian/questlog/internal/domain/errkind"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given structured failures", t, func() {
		Convey("When building a kind with a reason", func() {
			err := errkind.NewKind("lifecycle.accept", errkind.ErrInvalidTransition, "already interacted with this quest")

			Convey("Then it matches its kind and prints the reason", func() {
				So(errors.Is(err, errkind.ErrInvalidTransition), ShouldBeTrue)
				So(errors.Is(err, errkind.ErrNotFound), ShouldBeFalse)
				So(err.Error(), ShouldEqual, "lifecycle.accept: already interacted with this quest")
				So(errkind.Reason(err), ShouldEqual, "already interacted with this quest")
			})
		})

		Convey("When wrapping a driver error as a persistence failure", func() {
			cause := errors.New("pq: connection refused on 10.0.0.3")
			err := errkind.WrapKind("store.update", errkind.ErrPersistence, cause)

			Convey("Then the cause stays reachable but is not printed", func() {
				So(errors.Is(err, cause), ShouldBeTrue)
				So(errors.Is(err, errkind.ErrPersistence), ShouldBeTrue)
				So(err.Error(), ShouldNotContainSubstring, "10.0.0.3")
			})

			Convey("And Opaque drops the cause entirely", func() {
				opaque := errkind.Opaque("service.accept", err)
				So(errors.Is(opaque, errkind.ErrPersistence), ShouldBeTrue)
				So(errors.Is(opaque, cause), ShouldBeFalse)
			})
		})

		Convey("When re-labelling an error with Wrap", func() {
			inner := errkind.NewKind("lifecycle.submit", errkind.ErrValidation, "payload is empty")
			err := errkind.Wrap("service.submit", inner)

			Convey("Then the kind and reason survive", func() {
				So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "service.submit: payload is empty")
			})
		})

		Convey("When classifying an unknown error", func() {
			So(errkind.KindOf(errors.New("boom")), ShouldEqual, errkind.ErrPersistence)
			So(errkind.Wrap("op", nil), ShouldBeNil)
			So(errkind.WrapKind("op", errkind.ErrNotFound, nil), ShouldBeNil)
		})
	})
}
