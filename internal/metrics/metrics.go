package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages ingested, by account and outcome (stored, duplicate, failed).
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_messages_ingested_total",
			Help: "Total number of messages seen by the ingestion pipeline",
		},
		[]string{"account", "status"},
	)

	// Classifier call latency, by provider and outcome.
	ClassifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_classify_latency_seconds",
			Help:    "Sentiment classifier call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider", "status"},
	)

	// Poll outcomes per account.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_polls_total",
			Help: "Total number of account polls",
		},
		[]string{"account", "status"},
	)

	// Alerts raised, by severity.
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_raised_total",
			Help: "Total number of alerts raised",
		},
		[]string{"severity"},
	)

	// Trend query latency.
	TrendQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_trend_query_duration_seconds",
			Help:    "Trend aggregation query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

// IncrementMessagesIngested records one ingestion outcome.
func IncrementMessagesIngested(account, status string) {
	MessagesIngested.WithLabelValues(account, status).Inc()
}

// ObserveClassifyLatency records one classifier call.
func ObserveClassifyLatency(provider, status string, d time.Duration) {
	ClassifyLatency.WithLabelValues(provider, status).Observe(d.Seconds())
}

// IncrementPolls records one poll outcome.
func IncrementPolls(account, status string) {
	PollsTotal.WithLabelValues(account, status).Inc()
}

// IncrementAlertsRaised records one raised alert.
func IncrementAlertsRaised(severity string) {
	AlertsRaised.WithLabelValues(severity).Inc()
}

// ObserveTrendQueryDuration records one trend query.
func ObserveTrendQueryDuration(d time.Duration) {
	TrendQueryDuration.Observe(d.Seconds())
}
