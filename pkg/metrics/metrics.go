package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "postboard", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "postboard", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// StorageDeletes counts object deletions issued by reconciliation, by outcome (ok|failed).
	StorageDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "postboard", Name: "storage_deletes_total", Help: "Object storage deletions issued by reconciliation."},
		[]string{"outcome"},
	)
	PostMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "postboard", Name: "post_mutations_total", Help: "Post create/update/delete operations by result."},
		[]string{"op", "result"},
	)
	SweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "postboard", Name: "sweep_runs_total", Help: "Orphan sweep runs."},
	)
	SweepOrphans = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "postboard", Name: "sweep_orphans_total", Help: "Unreferenced objects found by the orphan sweep."},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "postboard", Name: "sweep_duration_seconds", Help: "Orphan sweep duration.", Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60}},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(StorageDeletes)
	reg.MustRegister(PostMutations)
	reg.MustRegister(SweepRuns)
	reg.MustRegister(SweepOrphans)
	reg.MustRegister(SweepDuration)
}
