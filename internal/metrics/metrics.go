// Package metrics provides Prometheus collectors for the treasury engine
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconciliationRunsTotal counts reconciliation runs by outcome
	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_reconciliation_runs_total",
		Help: "Total number of reconciliation runs by outcome",
	}, []string{"outcome"})

	// ReconciliationDuration observes how long a full reconciliation run takes
	ReconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "treasury_reconciliation_duration_seconds",
		Help:    "Duration of reconciliation runs in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// AllocationTransfersPlanned counts transfer lines produced by the batch builder
	AllocationTransfersPlanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_allocation_transfers_planned_total",
		Help: "Total number of transfer lines planned by the batch builder",
	}, []string{"category"})

	// ExecutionsTotal counts Safe transaction executions by chain and status
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_executions_total",
		Help: "Total number of Safe transaction executions by chain and status",
	}, []string{"chain", "status"})

	// ExecutionRetries counts retry attempts during transaction submission
	ExecutionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_execution_retries_total",
		Help: "Total number of transaction submission retries",
	})

	// BridgeTransfersTotal counts bridge transfers by source chain, destination chain and status
	BridgeTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_bridge_transfers_total",
		Help: "Total number of bridge transfers by route and status",
	}, []string{"source_chain", "destination_chain", "status"})

	// BridgeFillDuration observes the time between deposit and fill detection
	BridgeFillDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "treasury_bridge_fill_duration_seconds",
		Help:    "Time between bridge deposit and fill detection in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// OracleReadErrors counts failed balance reads by chain
	OracleReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_oracle_read_errors_total",
		Help: "Total number of failed balance reads by chain",
	}, []string{"chain"})

	// SafeDeploymentsTotal counts Safe deployments by chain
	SafeDeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_safe_deployments_total",
		Help: "Total number of Safe deployments by chain",
	}, []string{"chain"})

	// HTTPRequestDuration observes API request latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treasury_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
