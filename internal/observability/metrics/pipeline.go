package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains the Prometheus metrics for capture, catalog,
// confirmation and reconciliation.
type PipelineMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	activeSessions   prometheus.Gauge
	reconciledTotal  *prometheus.CounterVec
	photoUploadBytes prometheus.Histogram
}

// NewPipelineMetrics creates the pipeline collectors and registers them.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldlog_operations_total",
			Help: "Total number of pipeline operations by outcome",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldlog_operation_duration_seconds",
			Help:    "Duration of pipeline operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldlog_errors_total",
			Help: "Total number of pipeline errors by kind",
		},
		[]string{"operation", "error_type"},
	)

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldlog_pipeline_sessions",
		Help: "Number of live pipeline sessions",
	})

	m.reconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldlog_reconciled_entries_total",
			Help: "Entries finalized by the reconciliation sweep",
		},
		[]string{"draft"}, // cleared or kept
	)

	m.photoUploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldlog_photo_upload_bytes",
		Help:    "Size of uploaded photos in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 11), // 16KiB to 16MiB
	})
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetActiveSessions reports the current number of pipeline sessions.
func (m *PipelineMetrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// RecordReconciled counts entries finalized by a sweep, split by whether the
// matching draft was cleared as part of it.
func (m *PipelineMetrics) RecordReconciled(draftsCleared, draftsKept int) {
	m.reconciledTotal.WithLabelValues("cleared").Add(float64(draftsCleared))
	m.reconciledTotal.WithLabelValues("kept").Add(float64(draftsKept))
}

// ObservePhotoUpload records the size of a stored photo.
func (m *PipelineMetrics) ObservePhotoUpload(sizeBytes int64) {
	m.photoUploadBytes.Observe(float64(sizeBytes))
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	ch <- m.activeSessions
	m.reconciledTotal.Collect(ch)
	ch <- m.photoUploadBytes
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	ch <- m.activeSessions.Desc()
	m.reconciledTotal.Describe(ch)
	ch <- m.photoUploadBytes.Desc()
}

// OperationsCounter returns the counter for one operation and status.
func (m *PipelineMetrics) OperationsCounter(operation, status string) prometheus.Counter {
	return m.operationsTotal.WithLabelValues(operation, status)
}
