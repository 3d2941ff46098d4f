package kernelsearch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

//////
// Const, vars, types.
//////

var tracer = otel.Tracer("kernelsearch")

var (
	// candidatesTotal counts evaluated candidates by outcome
	// (ok, failed, out_of_bounds, nan).
	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kss_candidates_total",
		Help: "Total candidates evaluated by outcome",
	}, []string{"result"})

	// evaluationDuration tracks the latency of single fits.
	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kss_evaluation_duration_seconds",
		Help:    "Candidate fit duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
	})

	// depthDuration tracks how long each depth of the search takes.
	depthDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kss_depth_duration_seconds",
		Help:    "Search depth duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
	})

	// nearDuplicatesPruned counts results removed as covariance near
	// duplicates.
	nearDuplicatesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kss_near_duplicates_pruned_total",
		Help: "Total results removed as near duplicates",
	})

	// frontierSize records the number of distinct candidates per depth.
	frontierSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kss_frontier_size",
		Help:    "Distinct candidates per search depth",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)
