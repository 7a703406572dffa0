package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "intreg"
)

var (
	invocationDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

	// Registry Metrics
	RegisteredIntegrations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registered_integrations",
		Help:      "Number of integrations registered in the process.",
	})

	RegistrationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_failures_total",
		Help:      "Count of rejected integration registrations.",
	}, []string{"reason"})

	// Invocation Metrics
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invocations_total",
		Help:      "Count of integration invocations.",
	}, []string{"key", "status"})

	InvocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "invocation_duration_seconds",
		Help:      "Time taken by an integration invocation, including secret scoping.",
		Buckets:   invocationDurationBuckets,
	}, []string{"key"})

	// Secret Metrics
	SecretFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "secret_fetches_total",
		Help:      "Count of secret batch fetches.",
	}, []string{"backend", "status"})

	SecretFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "secret_fetch_duration_seconds",
		Help:      "Time taken for a secret batch fetch round-trip.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})
)
