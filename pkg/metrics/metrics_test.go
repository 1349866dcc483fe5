package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.awards.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_skill_awards_total"], ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "questlog")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording awards", func() {
			before := testutil.ToFloat64(globalManager.awardPoints)
			RecordAward(75)
			RecordAward(0)

			Convey("Then only positive points are accumulated", func() {
				So(testutil.ToFloat64(globalManager.awardPoints)-before, ShouldEqual, 75)
			})
		})

		Convey("When recording transitions and reviews", func() {
			before := testutil.ToFloat64(globalManager.transitions.WithLabelValues("accept", "ok"))
			RecordTransition("accept", "ok")
			RecordReview("approved")

			Convey("Then the labelled counter advances", func() {
				So(testutil.ToFloat64(globalManager.transitions.WithLabelValues("accept", "ok"))-before, ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining collectors", func() {
			So(func() {
				RecordMissed(2)
				RecordDuplicateAward()
				RecordSweep(12.5, 1700000000)
				RecordRepositoryUpdateLatency(1.5)
				RecordRepositoryQueryLatency(0.5)
				RecordPersistenceRetry()
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 3)
				RecordErrorByComponent("service", "validation")
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.sweepLastUnix), ShouldEqual, 1700000000)
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
