// Package metrics exposes Prometheus collectors for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "budget_ledger"

var (
	// RequestsTotal counts HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration measures request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// TransactionsRecorded counts ledger writes by transaction type.
	TransactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_recorded_total",
			Help:      "Transactions recorded by type",
		},
		[]string{"type"},
	)

	// CompensationsTotal counts compensation links created and released.
	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensation links by event",
		},
		[]string{"event"},
	)

	// ChangeRequestsResolved counts change request resolutions by outcome.
	ChangeRequestsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_requests_resolved_total",
			Help:      "Change requests resolved by outcome",
		},
		[]string{"outcome"},
	)

	// BudgetVersionsCreated counts budgets created, by how they were created.
	BudgetVersionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_versions_created_total",
			Help:      "Budgets created by origin",
		},
		[]string{"origin"},
	)

	// RateFeedFetches counts forex lookups by result.
	RateFeedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_feed_fetches_total",
			Help:      "Forex rate lookups by result",
		},
		[]string{"result"},
	)
)
