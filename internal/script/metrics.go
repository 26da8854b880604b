package script

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/cinder/internal/model"
)

// Metric label values for compile outcomes.
const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinder_script_cache_hits_total",
			Help: "Total number of compilations served from the artifact cache.",
		},
	)

	cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinder_script_cache_misses_total",
			Help: "Total number of cache lookups that required a fresh compile.",
		},
	)

	compilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinder_script_compiles_total",
			Help: "Total number of fresh script compilations.",
		},
		[]string{"result"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinder_script_executions_total",
			Help: "Total number of script executions by terminal status.",
		},
		[]string{"status"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinder_script_execution_seconds",
			Help:    "Wall-clock script evaluation time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(compilesTotal)
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)

	// Pre-initialize label combinations so they appear in /metrics with
	// value 0 from startup, rather than only after first observation.
	compilesTotal.WithLabelValues(resultOK)
	compilesTotal.WithLabelValues(resultError)
	for _, status := range []string{
		model.StatusCompleted, model.StatusTimedOut, model.StatusFailed, model.StatusKilled,
	} {
		executionsTotal.WithLabelValues(status)
	}
}
