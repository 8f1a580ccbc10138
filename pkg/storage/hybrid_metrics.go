package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbcore_storage_engine_ops_total",
			Help: "Total number of operations handled by a storage engine instance, any engine kind.",
		},
		[]string{"instance", "op"},
	)
	hybridMaterializedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbcore_hybrid_engine_materialized_rows_total",
			Help: "Total number of rows moved from the WAL-only overlay into the page store.",
		},
		[]string{"instance"},
	)
	hybridPendingRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbcore_hybrid_engine_pending_rows",
			Help: "Rows currently held in the WAL-only in-memory overlay, not yet materialized.",
		},
		[]string{"instance"},
	)
	hybridCompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbcore_hybrid_engine_wal_compactions_total",
			Help: "Total number of times the hybrid engine truncated its WAL after materialization.",
		},
		[]string{"instance"},
	)
)

// Metrics is a point-in-time snapshot of a HybridEngine's activity counters,
// returned by GetMetrics so callers don't need a Prometheus gatherer just to
// assert on engine behavior in tests.
type Metrics struct {
	Inserts      uint64
	Updates      uint64
	Deletes      uint64
	Materialized uint64
	Compactions  uint64
	PendingRows  int
}
