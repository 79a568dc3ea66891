// Package metrics holds the Prometheus collectors for the map service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DatasetLoads counts dataset load attempts by dataset and result (ok|error).
	DatasetLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platmap_dataset_loads_total",
		Help: "Dataset load attempts",
	}, []string{"dataset", "result"})

	// PointerEvents counts hover transitions by kind (enter|switch|move|leave).
	PointerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platmap_pointer_events_total",
		Help: "Pointer-driven hover transitions",
	}, []string{"kind"})

	// Searches counts district searches by outcome (hit|miss|empty|fetch_error|superseded).
	Searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platmap_searches_total",
		Help: "District searches",
	}, []string{"outcome"})

	// FetchDurationMs observes upstream fetch latency.
	FetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platmap_fetch_duration_ms",
		Help:    "Upstream fetch latency in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	// Tiles counts tile responses by kind (raster|vector) and status.
	Tiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platmap_tiles_total",
		Help: "Tile responses",
	}, []string{"kind", "status"})

	// ActiveSessions is the number of live map sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platmap_active_sessions",
		Help: "Live map sessions",
	})
)

func init() {
	prometheus.MustRegister(DatasetLoads)
	prometheus.MustRegister(PointerEvents)
	prometheus.MustRegister(Searches)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(Tiles)
	prometheus.MustRegister(ActiveSessions)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
