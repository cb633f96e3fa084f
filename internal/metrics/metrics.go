package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labstore_http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labstore_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AllocationsTotal counts allocate calls by outcome (ok, over_allocation,
	// already_allocated, contention, ...).
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labstore_allocations_total",
			Help: "Allocation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AllocationRetriesTotal counts optimistic-concurrency save retries.
	AllocationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labstore_allocation_retries_total",
			Help: "Optimistic concurrency retries inside the allocation engine",
		},
	)

	ItemsReservedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labstore_equipment_items_reserved_total",
			Help: "Successful equipment item reservations",
		},
	)
)
