// Package metrics provides Prometheus instrumentation for the sieve server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only sieve metrics appear on the /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the sieve server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	FilterRunsTotal     *prometheus.CounterVec
	FilterFailuresTotal *prometheus.CounterVec
	RecordsMatched      *prometheus.CounterVec
	RecordsExcluded     *prometheus.CounterVec
}

// New creates and registers all sieve metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sieve_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		FilterRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_filter_runs_total",
			Help: "Total number of completed filter runs.",
		}, []string{"collection"}),

		FilterFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_filter_failures_total",
			Help: "Total number of filter runs that failed before evaluation.",
		}, []string{"collection"}),

		RecordsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_records_matched_total",
			Help: "Total number of records that passed every rule.",
		}, []string{"collection"}),

		RecordsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_records_excluded_total",
			Help: "Total number of records excluded for missing rule fields.",
		}, []string{"collection"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FilterRunsTotal,
		m.FilterFailuresTotal,
		m.RecordsMatched,
		m.RecordsExcluded,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// RecordFilter records the outcome of one successful filter run.
func (m *Metrics) RecordFilter(collection string, matched, excluded int) {
	m.FilterRunsTotal.WithLabelValues(collection).Inc()
	m.RecordsMatched.WithLabelValues(collection).Add(float64(matched))
	m.RecordsExcluded.WithLabelValues(collection).Add(float64(excluded))
}

// Subscribe feeds the filter collectors from the persistence event stream and
// returns a function that removes the subscriptions.
func (m *Metrics) Subscribe(p persistence.PersistenceInterface) func() {
	label := "metrics"
	ids := []string{
		p.RegisterSubscription(persistence.RegisterSubscriptionOptions{
			Event: persistence.FilterSuccess,
			Label: &label,
			Callback: func(_ context.Context, event persistence.PersistenceEvent) error {
				result, ok := event.Output.(*persistence.QueryResult)
				if !ok || result == nil {
					return nil
				}
				m.RecordFilter(collectionOf(event), result.Report.Matched, len(result.Report.Excluded))
				return nil
			},
		}),
		p.RegisterSubscription(persistence.RegisterSubscriptionOptions{
			Event: persistence.FilterFailed,
			Label: &label,
			Callback: func(_ context.Context, event persistence.PersistenceEvent) error {
				m.FilterFailuresTotal.WithLabelValues(collectionOf(event)).Inc()
				return nil
			},
		}),
	}
	return func() {
		for _, id := range ids {
			p.UnregisterSubscription(id)
		}
	}
}

func collectionOf(event persistence.PersistenceEvent) string {
	if event.Collection == nil {
		return ""
	}
	return *event.Collection
}
