package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intentmarket",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentmarket",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intentmarket",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	offerDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentmarket",
			Subsystem: "offers",
			Name:      "decisions_total",
			Help:      "Offer accept/decline attempts by outcome.",
		},
		[]string{"decision", "outcome"},
	)

	offersExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intentmarket",
			Subsystem: "offers",
			Name:      "expired_total",
			Help:      "Offers moved to expired by the expiry sweep.",
		},
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intentmarket",
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of offer expiry sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		offerDecisions,
		offersExpired,
		sweepDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted marks a request in flight and returns the func that records it on completion
func RequestStarted() func(method, route string, status int) {
	start := time.Now()
	httpInFlight.Inc()
	return func(method, route string, status int) {
		httpInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordOfferDecision counts an accept or decline attempt
func RecordOfferDecision(decision, outcome string) {
	offerDecisions.WithLabelValues(decision, outcome).Inc()
}

// RecordExpirySweep records one run of the offer expiry job
func RecordExpirySweep(expired int, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	offersExpired.Add(float64(expired))
	sweepDuration.WithLabelValues(strconv.FormatBool(success)).Observe(duration.Seconds())
}
