package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

const namespace = "vulncorrelator"

var (
	// CorrelationRuns counts finished correlation runs by status
	CorrelationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_runs_total",
			Help:      "Total number of correlation runs",
		},
		[]string{"status"},
	)

	// CorrelationDuration observes the wall time of successful runs
	CorrelationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_duration_seconds",
			Help:      "Duration of successful correlation runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	// MatchesFound counts matches produced by runs, by match kind
	MatchesFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_found_total",
			Help:      "Total number of matches produced by correlation runs",
		},
		[]string{"kind"},
	)

	// PairsSkipped counts asset/advisory pairs whose evaluation failed
	PairsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_skipped_total",
			Help:      "Total number of asset/advisory pairs skipped after an evaluation failure",
		},
	)

	// AdvisoriesIngested counts ingested advisories by outcome
	AdvisoriesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_ingested_total",
			Help:      "Total number of advisories processed by ingestion",
		},
		[]string{"outcome"},
	)

	// HTTPRequests counts API requests by route, method and status code
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPDuration observes API request latency by route
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	once sync.Once
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			CorrelationRuns,
			CorrelationDuration,
			MatchesFound,
			PairsSkipped,
			AdvisoriesIngested,
			HTTPRequests,
			HTTPDuration,
		)
	})
}

// Recorder turns engine, ingestion and HTTP events into metric updates
type Recorder struct{}

// NewRecorder registers the collectors and returns a recorder
func NewRecorder() *Recorder {
	Init()
	return &Recorder{}
}

// PairSkipped implements correlation.Observer
func (r *Recorder) PairSkipped(_, _ string) {
	PairsSkipped.Inc()
}

// RunCompleted implements correlation.Observer
func (r *Recorder) RunCompleted(stats *types.RunStats) {
	CorrelationRuns.WithLabelValues("success").Inc()
	CorrelationDuration.Observe(float64(stats.DurationMs) / 1000)

	MatchesFound.WithLabelValues(string(types.MatchExact)).Add(float64(stats.ExactMatches))
	MatchesFound.WithLabelValues(string(types.MatchVersionRange)).Add(float64(stats.VersionRangeMatches))
	MatchesFound.WithLabelValues(string(types.MatchWildcard)).Add(float64(stats.WildcardMatches))
}

// RunFailed implements correlation.Observer
func (r *Recorder) RunFailed(_ error) {
	CorrelationRuns.WithLabelValues("failure").Inc()
}

// AdvisoryIngested implements advisory.Observer
func (r *Recorder) AdvisoryIngested(outcome string) {
	AdvisoriesIngested.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request
func (r *Recorder) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
