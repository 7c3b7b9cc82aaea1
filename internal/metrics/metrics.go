package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "equiprent"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	bookingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_requests_total",
			Help:      "Booking requests by outcome (created or error kind).",
		},
		[]string{"outcome"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking transitions by target status and outcome.",
		},
		[]string{"target", "outcome"},
	)

	lockDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_lock_duration_seconds",
			Help:      "Time spent inside a per-equipment write section.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	activeCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "active_cache_total",
			Help:      "Active set cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingRequests, bookingTransitions, lockDuration, activeCache)
	})
}

func IncHTTP(route, method, code string) {
	httpRequests.WithLabelValues(route, method, code).Inc()
}

func IncBookingRequest(outcome string) {
	bookingRequests.WithLabelValues(outcome).Inc()
}

func IncTransition(target, outcome string) {
	bookingTransitions.WithLabelValues(target, outcome).Inc()
}

func ObserveLock(d time.Duration) {
	lockDuration.Observe(d.Seconds())
}

// IncActiveCache records a hit, miss, stale or error lookup.
func IncActiveCache(result string) {
	activeCache.WithLabelValues(result).Inc()
}
