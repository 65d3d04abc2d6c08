package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goodnoodle_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goodnoodle_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	platformEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goodnoodle_platform_events_total",
		Help: "Inbound chat platform events by type and result",
	}, []string{"type", "result"})

	gifts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goodnoodle_gifts_total",
		Help: "Gifting messages by terminal outcome",
	}, []string{"outcome"})

	tokensGifted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goodnoodle_tokens_gifted_total",
		Help: "Tokens moved by committed gifts",
	})

	ledgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goodnoodle_ledger_writes_total",
		Help: "Ledger commits by result",
	}, []string{"result"})

	nameFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goodnoodle_name_fetch_failures_total",
		Help: "Users created without a display name because the lookup failed",
	})

	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goodnoodle_reconcile_runs_total",
		Help: "Counter reconciliation runs by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func ObserveEvent(eventType, result string) {
	platformEvents.WithLabelValues(eventType, result).Inc()
}

// ObserveGift counts a gifting message by outcome and adds committed tokens to the total.
func ObserveGift(outcome string, tokens int) {
	gifts.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		tokensGifted.Add(float64(tokens))
	}
}

func ObserveLedgerWrite(result string) {
	ledgerWrites.WithLabelValues(result).Inc()
}

func ObserveNameFetchFailure() {
	nameFetchFailures.Inc()
}

func ObserveReconcile(result string) {
	reconcileRuns.WithLabelValues(result).Inc()
}
