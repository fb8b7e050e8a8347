// Package metrics exposes Prometheus counters for auth flow outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Collector struct {
	flowTotal *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		flowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_auth_flow_total",
				Help: "Auth flow executions by flow name and outcome.",
			},
			[]string{"flow", "outcome"},
		),
	}
	reg.MustRegister(c.flowTotal)
	return c
}

func (c *Collector) RecordFlow(flow, outcome string) {
	c.flowTotal.WithLabelValues(flow, outcome).Inc()
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
