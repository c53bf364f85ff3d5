package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tenant_backup"

// Metrics collects operation metrics in its own registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	recordsTotal      *prometheus.CounterVec
	skippedTables     *prometheus.CounterVec
	artifactBytes     *prometheus.HistogramVec
	validationIssues  *prometheus.CounterVec
	archiveOperations *prometheus.CounterVec
	archivedBytes     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them in a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Operations by kind and status",
		}, []string{"operation", "status"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"operation"}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Records exported, imported, deleted or validated",
		}, []string{"operation"}),
		skippedTables: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "skipped_tables_total",
			Help:      "Tables skipped by best-effort operations",
		}, []string{"operation"}),
		artifactBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of produced artifacts",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256MiB
		}, []string{"format"}),
		validationIssues: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validation_issues_total",
			Help:      "Dry-run issues by severity",
		}, []string{"severity"}),
		archiveOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "archive_operations_total",
			Help:      "Archive operations by kind and status",
		}, []string{"operation", "status"}),
		archivedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "archive_bytes_total",
			Help:      "Bytes written to and read from the archive",
		}, []string{"operation"}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observe(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveExport records an export
func (m *Metrics) ObserveExport(format Format, result *ExportResult, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.observe("export", err == nil && result != nil, duration)
	if result == nil {
		return
	}
	m.recordsTotal.WithLabelValues("export").Add(float64(result.TotalRecords))
	m.skippedTables.WithLabelValues("export").Add(float64(len(result.SkippedTables)))
	m.artifactBytes.WithLabelValues(string(format)).Observe(float64(result.Size))
}

// ObserveImport records an import
func (m *Metrics) ObserveImport(mode ImportMode, result *ImportResult, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.observe("import_"+string(mode), err == nil && result != nil && result.Success, duration)
	if result != nil {
		m.recordsTotal.WithLabelValues("import").Add(float64(result.TotalRecords))
	}
}

// ObserveReset records a reset
func (m *Metrics) ObserveReset(result *ResetResult, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.observe("reset", err == nil && result != nil && result.Success, duration)
	if result != nil {
		m.recordsTotal.WithLabelValues("reset").Add(float64(result.TotalDeleted))
	}
}

// ObserveValidation records a dry run
func (m *Metrics) ObserveValidation(report *ValidationReport, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.observe("validate", err == nil && report != nil && report.Compatible, duration)
	if report == nil {
		return
	}
	m.recordsTotal.WithLabelValues("validate").Add(float64(report.TotalRecords))
	m.validationIssues.WithLabelValues(string(SeverityError)).Add(float64(len(report.Errors)))
	m.validationIssues.WithLabelValues(string(SeverityWarning)).Add(float64(len(report.Warnings)))
}

// ObserveArchive records an archive save, load or delete
func (m *Metrics) ObserveArchive(operation string, bytes int64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.archiveOperations.WithLabelValues(operation, status).Inc()
	if err == nil && bytes > 0 {
		m.archivedBytes.WithLabelValues(operation).Add(float64(bytes))
	}
}
