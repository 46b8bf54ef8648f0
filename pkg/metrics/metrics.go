package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	buildsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apkforge",
			Subsystem: "builder",
			Name:      "builds_started_total",
			Help:      "Total number of build runs started.",
		},
	)
	buildsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apkforge",
			Subsystem: "builder",
			Name:      "builds_finished_total",
			Help:      "Build runs that reached a terminal status.",
		},
		[]string{"status"},
	)
	buildsSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apkforge",
			Subsystem: "builder",
			Name:      "builds_superseded_total",
			Help:      "Build runs replaced by a newer start or cancelled before finishing.",
		},
	)
	staleTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apkforge",
			Subsystem: "builder",
			Name:      "stale_transitions_total",
			Help:      "Scheduled transitions rejected because their run was superseded or deleted.",
		},
	)
	buildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "apkforge",
			Subsystem: "builder",
			Name:      "build_duration_seconds",
			Help:      "Wall time from build start to terminal status.",
			Buckets:   []float64{0.5, 1, 2, 4, 5, 8, 15, 30},
		},
	)

	assistantRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apkforge",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Provider calls grouped by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	assistantRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apkforge",
			Subsystem: "assistant",
			Name:      "request_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apkforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests grouped by method and status code.",
		},
		[]string{"method", "code"},
	)
)

func init() {
	Register()
}

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			buildsStartedTotal,
			buildsFinishedTotal,
			buildsSupersededTotal,
			staleTransitionsTotal,
			buildDuration,
			assistantRequestsTotal,
			assistantRequestDuration,
			httpRequestsTotal,
		)
	})
}

func BuildStarted() {
	buildsStartedTotal.Inc()
}

func BuildSuperseded() {
	buildsSupersededTotal.Inc()
}

func StaleTransition() {
	staleTransitionsTotal.Inc()
}

func ObserveBuildFinished(status string, duration time.Duration) {
	buildsFinishedTotal.WithLabelValues(status).Inc()
	buildDuration.Observe(duration.Seconds())
}

func ObserveAssistantRequest(provider string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	assistantRequestsTotal.WithLabelValues(provider, outcome).Inc()
	assistantRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func ObserveHTTPRequest(method string, code int) {
	httpRequestsTotal.WithLabelValues(method, statusLabel(code)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
