// Package metrics defines the Prometheus metrics of the collector: HTTP
// attempts against the management API, job outcomes, deliveries and the
// schedule position.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by the collectors below.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "transport_error"
)

var (
	HTTPAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecs_collector_http_attempts_total",
		Help: "Total number of HTTP attempts against the management API by step and outcome",
	}, []string{"step", "outcome"})
	Jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecs_collector_jobs_total",
		Help: "Total number of collection jobs by result",
	}, []string{"result"})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecs_collector_deliveries_total",
		Help: "Total number of payload deliveries by channel and result",
	}, []string{"channel", "result"})

	// Schedule position
	NextRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecs_collector_next_run_timestamp_seconds",
		Help: "Unix time of the next scheduled collection",
	})
	LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecs_collector_last_success_timestamp_seconds",
		Help: "Unix time at which the last successful collection finished",
	})
)

func init() {
	prometheus.MustRegister(HTTPAttempts)
	prometheus.MustRegister(Jobs)
	prometheus.MustRegister(Deliveries)
	prometheus.MustRegister(NextRun)
	prometheus.MustRegister(LastSuccess)
}

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
