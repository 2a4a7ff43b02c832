// Package metrics exposes Prometheus counters and histograms for the HTTP
// surface, outbound Graph traffic, token refreshes and document sync.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragdesk"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests served.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	GraphRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_requests_total",
		Help:      "Microsoft Graph requests by method and final status.",
	}, []string{"method", "status"})

	GraphRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_retries_total",
		Help:      "Microsoft Graph request attempts that were retried.",
	})

	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Access token refresh attempts by outcome.",
	}, []string{"outcome"})

	SyncDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_deletes_total",
		Help:      "Document deletions by outcome (deleted, failed, inconsistent).",
	}, []string{"outcome"})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Document uploads by outcome (uploaded, failed, skipped).",
	}, []string{"outcome"})

	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_requests_total",
		Help:      "Chat webhook calls by outcome.",
	}, []string{"outcome"})
)

// Outcome labels shared by several counters.
const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeDeleted      = "deleted"
	OutcomeFailed       = "failed"
	OutcomeInconsistent = "inconsistent"
	OutcomeUploaded     = "uploaded"
	OutcomeSkipped      = "skipped"
	OutcomeRateLimited  = "rate_limited"
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveGraph records the final status of one Graph request. A zero status
// means the request never produced a response.
func ObserveGraph(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}

	GraphRequestsTotal.WithLabelValues(method, label).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
