package gojavm

import "github.com/prometheus/client_golang/prometheus"

var (
	activeInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinder_goja_active_instances",
			Help: "Number of goja runtimes currently alive.",
		},
	)

	interruptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinder_goja_interrupts_total",
			Help: "Total number of script runs aborted by an interrupt.",
		},
	)
)

func init() {
	prometheus.MustRegister(activeInstances)
	prometheus.MustRegister(interruptsTotal)
}
