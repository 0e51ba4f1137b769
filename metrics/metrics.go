// Package metrics collects protocol-level counters. Everything is
// registered on a private registry so that embedding applications keep
// control of their default prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PrivateMetrics holds every collector of this module.
	PrivateMetrics = prometheus.NewRegistry()

	// ShuffleCounter counts malicious shuffle invocations by outcome
	// (ok, validation_failed, error).
	ShuffleCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mixguard_shuffle_total",
		Help: "Number of malicious shuffle invocations",
	}, []string{"outcome"})

	// ValidationFailures counts hash comparisons that did not match,
	// labeled by the check that failed.
	ValidationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mixguard_shuffle_validation_failures",
		Help: "Number of failed shuffle verification checks",
	}, []string{"check"})

	// TagMultiplications counts secure multiplications spent on MAC tags.
	TagMultiplications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mixguard_tag_multiplications_total",
		Help: "Number of secure multiplications used to compute MAC tags",
	})

	// ShuffleRows observes the input size of shuffle invocations.
	ShuffleRows = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mixguard_shuffle_rows",
		Help:    "Rows per shuffle invocation",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	metricsBound = false
)

func bindMetrics() {
	if metricsBound {
		return
	}
	metricsBound = true

	for _, c := range []prometheus.Collector{
		ShuffleCounter,
		ValidationFailures,
		TagMultiplications,
		ShuffleRows,
	} {
		PrivateMetrics.MustRegister(c)
	}
}

// Handler returns an http handler serving the module's metrics, for
// embedding into whatever server the application already runs.
func Handler() http.Handler {
	bindMetrics()
	return promhttp.HandlerFor(PrivateMetrics, promhttp.HandlerOpts{})
}

func init() {
	bindMetrics()
}
