// Package metrics holds the Prometheus collectors exported by distlbfgs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "distlbfgs"

var (
	// Registry holds every distlbfgs collector. It is separate from the
	// default registry so tests can read counters without global noise.
	Registry = prometheus.NewRegistry()

	// PartitionTasks counts partition task attempts by outcome.
	PartitionTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "partition_tasks_total",
		Help:      "Partition task attempts by outcome (success, failure).",
	}, []string{"outcome"})

	// CostEvaluations counts full distributed cost evaluations.
	CostEvaluations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_evaluations_total",
		Help:      "Distributed loss/gradient evaluations.",
	})

	// CostCacheHits counts evaluations answered by the one-entry cache.
	CostCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_cache_hits_total",
		Help:      "Cost evaluations answered from the last-point cache.",
	})

	// CostEvaluationSeconds observes the latency of one distributed evaluation.
	CostEvaluationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cost_evaluation_seconds",
		Help:      "Wall time of one distributed loss/gradient evaluation.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	// Loss is the most recently recorded loss of the running optimization.
	Loss = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "loss",
		Help:      "Most recent loss recorded by the optimization driver.",
	})
)

func init() {
	Registry.MustRegister(
		PartitionTasks,
		CostEvaluations,
		CostCacheHits,
		CostEvaluationSeconds,
		Loss,
	)
}

// Handler serves the distlbfgs registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
