package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mapa-rutas/internal/models"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Uploads counts finished uploads by outcome (done, rejected, error)
	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "uploads_total", Help: "Uploads by outcome."},
		[]string{"status"},
	)
	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dataset_build_duration_seconds", Help: "Dataset build duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}},
	)
	// RowsDropped counts rows excluded during builds by reason
	RowsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dataset_rows_dropped_total", Help: "Rows excluded from datasets by reason."},
		[]string{"reason"},
	)
	// DatasetRecords is the record count of the most recently built dataset
	DatasetRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dataset_records", Help: "Records in the most recently built dataset."},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sessions_active", Help: "Browser sessions holding server-side state."},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Uploads)
		Registry.MustRegister(BuildDuration)
		Registry.MustRegister(RowsDropped)
		Registry.MustRegister(DatasetRecords)
		Registry.MustRegister(ActiveSessions)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveBuild records the stats of one successful build.
func ObserveBuild(stats models.BuildStats, seconds float64) {
	BuildDuration.Observe(seconds)
	RowsDropped.WithLabelValues("parse").Add(float64(stats.DroppedParse))
	RowsDropped.WithLabelValues("range").Add(float64(stats.DroppedRange))
	DatasetRecords.Set(float64(stats.RowsKept))
}
