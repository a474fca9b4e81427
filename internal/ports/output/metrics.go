package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncActionCount increments the action counter.
	IncActionCount(action string, success bool)

	// ObserveActionDuration records action duration.
	ObserveActionDuration(action string, duration time.Duration)

	// AddRowsSpatialized adds to the number of rows given a geometry.
	AddRowsSpatialized(resourceID string, rows int64)

	// IncCatalogRequests increments the catalog request counter.
	IncCatalogRequests(method string, status int)

	// ObserveCatalogDuration records catalog request duration.
	ObserveCatalogDuration(method string, duration time.Duration)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncActionCount implements MetricsCollector.
func (n *NoOpMetrics) IncActionCount(_ string, _ bool) {}

// ObserveActionDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveActionDuration(_ string, _ time.Duration) {}

// AddRowsSpatialized implements MetricsCollector.
func (n *NoOpMetrics) AddRowsSpatialized(_ string, _ int64) {}

// IncCatalogRequests implements MetricsCollector.
func (n *NoOpMetrics) IncCatalogRequests(_ string, _ int) {}

// ObserveCatalogDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveCatalogDuration(_ string, _ time.Duration) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
