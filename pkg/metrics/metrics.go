// Package metrics carries the ambient observability stack (spec SPEC_FULL
// §10): per-daemon Prometheus counters for polling ticks, relay
// deliveries, and HTTP request duration. Grounded on the teacher's direct
// prometheus/client_golang dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the control plane's metrics under one collector set so
// each daemon can expose its own /metrics endpoint independently.
type Registry struct {
	PollTicks          *prometheus.CounterVec
	PollErrors         *prometheus.CounterVec
	EventsIngested     *prometheus.CounterVec
	RelayDelivered     *prometheus.CounterVec
	RelayDropped       *prometheus.CounterVec
	ApprovalsIssued    *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec

	reg *prometheus.Registry
}

// New constructs and registers a fresh metrics registry for one daemon.
func New(daemon string) *Registry {
	reg := prometheus.NewRegistry()
	namespace := "certen_" + daemon

	r := &Registry{
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_ticks_total", Help: "Polling ticks performed per chain adapter.",
		}, []string{"chain_id"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_errors_total", Help: "Polling ticks that failed per chain adapter.",
		}, []string{"chain_id"}),
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_ingested_total", Help: "Events inserted into the cache per kind.",
		}, []string{"kind"}),
		RelayDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relay_delivered_total", Help: "Relay jobs successfully delivered.",
		}, []string{"dst_chain_id"}),
		RelayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relay_dropped_total", Help: "Relay jobs dropped by terminal state.",
		}, []string{"state"}),
		ApprovalsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "approvals_issued_total", Help: "Approval signatures issued per scheme.",
		}, []string{"scheme"}),
		HTTPRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP handler duration.",
		}, []string{"path"}),
		reg: reg,
	}

	reg.MustRegister(r.PollTicks, r.PollErrors, r.EventsIngested, r.RelayDelivered, r.RelayDropped, r.ApprovalsIssued, r.HTTPRequestSeconds)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
