// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IncidentsInserted counts incident documents attempted against the
	// store. Failed batches are still counted (best-effort accounting);
	// BatchesDropped is how operators tell the difference.
	IncidentsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telesim_incidents_inserted_total",
		Help: "Incident documents attempted against the store.",
	})

	// BatchesDropped counts batch inserts the store rejected.
	BatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telesim_batches_dropped_total",
		Help: "Incident batches rejected by the store.",
	})

	// ActiveShards tracks the number of live producer shards.
	ActiveShards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telesim_active_shards",
		Help: "Producer shards currently running.",
	})

	// RepairsScheduled counts repair timers registered.
	RepairsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telesim_repairs_scheduled_total",
		Help: "Repair timers registered by the scheduler.",
	})

	// RepairsPersisted counts repair records successfully inserted.
	RepairsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telesim_repairs_persisted_total",
		Help: "Repair records persisted to the store.",
	})

	// RepairsDuplicate counts repair inserts rejected by the unique index.
	RepairsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telesim_repairs_duplicate_total",
		Help: "Repair inserts rejected as duplicates.",
	})

	// RepairsSkipped counts candidates dropped by the fix-probability gate.
	RepairsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telesim_repairs_skipped_total",
		Help: "Repair candidates dropped by the probability gate.",
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
