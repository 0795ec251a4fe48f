package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lodge_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "path", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lodge_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lodge_auth_logins_total",
		Help: "Login attempts by outcome (success, failure).",
	}, []string{"outcome"})

	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lodge_auth_refreshes_total",
		Help: "Refresh exchanges by outcome (success, invalid, not_latest, already_used).",
	}, []string{"outcome"})

	RevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lodge_auth_revocations_total",
		Help: "Full refresh-token lineage revocations (logout or anomaly).",
	})
)
