// Package metrics records pipeline run metrics in a Prometheus registry.
// A CLI run is short-lived, so metrics are exported through the node
// exporter textfile format rather than a scrape endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/civicload/errors"
)

const namespace = "civicload"

// Recorder holds the metrics of one process
type Recorder struct {
	registry *prometheus.Registry

	datasets        *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	filesAcquired   *prometheus.CounterVec
	rowsLoaded      *prometheus.CounterVec
	validationFails *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// New registers the pipeline metrics in a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		datasets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_total",
			Help:      "Datasets that reached a terminal state, by state and error kind",
		}, []string{"dataset", "state", "error_kind"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9),
		}, []string{"dataset", "stage"}),
		filesAcquired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_acquired_total",
			Help:      "Remote files by acquisition status",
		}, []string{"dataset", "status"}),
		rowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Warehouse rows written, by operation",
		}, []string{"dataset", "op"}),
		validationFails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Files rejected by contract validation",
		}, []string{"dataset"}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Terminal counts a dataset reaching state. kind is empty on success.
func (r *Recorder) Terminal(dataset, state string, kind errors.Kind) {
	r.datasets.WithLabelValues(dataset, state, string(kind)).Inc()
}

// StageDuration observes the time one stage took
func (r *Recorder) StageDuration(dataset, stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(dataset, stage).Observe(d.Seconds())
}

// FilesAcquired adds n files with the given acquisition status
func (r *Recorder) FilesAcquired(dataset, status string, n int) {
	r.filesAcquired.WithLabelValues(dataset, status).Add(float64(n))
}

// RowsLoaded records the rows inserted and updated by a load
func (r *Recorder) RowsLoaded(dataset string, inserted, updated int64) {
	r.rowsLoaded.WithLabelValues(dataset, "insert").Add(float64(inserted))
	r.rowsLoaded.WithLabelValues(dataset, "update").Add(float64(updated))
}

// ValidationFailed counts a rejected file
func (r *Recorder) ValidationFailed(dataset string) {
	r.validationFails.WithLabelValues(dataset).Inc()
}

// RunFinished stamps the end of a run
func (r *Recorder) RunFinished(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path in the text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, r.registry), "write metrics to %s", path)
}
