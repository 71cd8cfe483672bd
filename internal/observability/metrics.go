package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proconnect_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ConnectionTransitions counts server-side edge transitions.
	ConnectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proconnect_connection_transitions_total",
		Help: "Connection edge transitions by kind and outcome",
	}, []string{"transition", "outcome"})

	// MessagesSent counts messages accepted by the API.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proconnect_messages_sent_total",
		Help: "Total number of direct messages persisted",
	})

	// ConversationCacheLookups counts conversation summary cache hits and misses.
	ConversationCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proconnect_conversation_cache_lookups_total",
		Help: "Conversation summary cache lookups by result",
	}, []string{"result"})

	// ClientRequestLatency records backend call latency seen by the client.
	ClientRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proconnect_client_request_latency_seconds",
		Help:    "Client-side backend request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	// SyncPolls counts scheduler poll ticks by task and outcome.
	SyncPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proconnect_sync_polls_total",
		Help: "Sync scheduler poll ticks by task and outcome",
	}, []string{"task", "outcome"})

	// ReconcileOutcomes counts how server messages were merged into threads.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proconnect_reconcile_outcomes_total",
		Help: "Thread reconciliation outcomes (matched, inserted, updated, failed)",
	}, []string{"outcome"})

	// OptimisticRollbacks counts optimistic mutations undone after a failed call.
	OptimisticRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proconnect_optimistic_rollbacks_total",
		Help: "Optimistic mutations rolled back by operation and reason",
	}, []string{"operation", "reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackClientRequest returns a function that records the latency of one backend call.
func TrackClientRequest(operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		ClientRequestLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	}
}

// RecordReconcile adds one reconcile pass's counts.
func RecordReconcile(matched, inserted, updated, failed int) {
	ReconcileOutcomes.WithLabelValues("matched").Add(float64(matched))
	ReconcileOutcomes.WithLabelValues("inserted").Add(float64(inserted))
	ReconcileOutcomes.WithLabelValues("updated").Add(float64(updated))
	ReconcileOutcomes.WithLabelValues("failed").Add(float64(failed))
}
