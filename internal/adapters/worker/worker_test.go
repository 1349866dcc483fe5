package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeSweeper struct {
	calls  atomic.Int32
	marked int
	err    error
}

func (f *fakeSweeper) SweepDeadlines(context.Context) (int, error) {
	f.calls.Add(1)
	return f.marked, f.err
}

func TestDeadlineSweeper(t *testing.T) {
	Convey("Given a deadline sweeper", t, func() {
		fs := &fakeSweeper{marked: 3}

		Convey("RunOnce returns what the sweep marked", func() {
			w := NewDeadlineSweeper(fs)
			So(w.RunOnce(context.Background()), ShouldEqual, 3)
			So(int(fs.calls.Load()), ShouldEqual, 1)
		})

		Convey("RunOnce survives a failing sweep", func() {
			fs.err = errors.New("db down")
			fs.marked = 0
			w := NewDeadlineSweeper(fs)
			So(w.RunOnce(context.Background()), ShouldEqual, 0)
		})

		Convey("Run sweeps on start and on every tick until shutdown", func() {
			w := NewDeadlineSweeper(fs,
				WithName("test-sweeper"),
				WithInterval(5*time.Millisecond),
				WithRunOnStart(true),
			)
			go w.Run(context.Background())

			deadline := time.Now().Add(2 * time.Second)
			for fs.calls.Load() < 3 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			So(int(fs.calls.Load()), ShouldBeGreaterThanOrEqualTo, 3)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			So(w.Shutdown(ctx), ShouldBeNil)
			So(w.Shutdown(ctx), ShouldBeNil)
		})

		Convey("Run stops when its context is cancelled", func() {
			w := NewDeadlineSweeper(fs, WithInterval(time.Hour))
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			So(w.Shutdown(sctx), ShouldBeNil)
		})

		Convey("Shutdown times out when the loop never started", func() {
			w := NewDeadlineSweeper(fs)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			So(w.Shutdown(ctx), ShouldNotBeNil)
		})
	})
}
