// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ngds/geobridge/internal/ports/output"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	actionCounter       *prometheus.CounterVec
	actionDuration      *prometheus.HistogramVec
	rowsSpatialized     *prometheus.CounterVec
	catalogRequests     *prometheus.CounterVec
	catalogDuration     *prometheus.HistogramVec
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	gatherer            prometheus.Gatherer
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// A nil reg uses the default registry.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = "geobridge"
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Collector{
		actionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of actions run",
			},
			[]string{"action", "status"},
		),

		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Action duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),

		rowsSpatialized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_spatialized_total",
				Help:      "Total number of datastore rows given a geometry",
			},
			[]string{"resource_id"},
		),

		catalogRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geoserver_requests_total",
				Help:      "Total number of GeoServer REST requests",
			},
			[]string{"method", "status"},
		),

		catalogDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geoserver_request_duration_seconds",
				Help:      "GeoServer REST request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		storageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		gatherer: gatherer,
	}
}

// IncActionCount increments the action counter.
func (c *Collector) IncActionCount(action string, success bool) {
	c.actionCounter.WithLabelValues(action, successLabel(success)).Inc()
}

// ObserveActionDuration records action duration.
func (c *Collector) ObserveActionDuration(action string, duration time.Duration) {
	c.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// AddRowsSpatialized adds to the spatialized rows counter.
func (c *Collector) AddRowsSpatialized(resourceID string, rows int64) {
	if rows <= 0 {
		return
	}
	c.rowsSpatialized.WithLabelValues(resourceID).Add(float64(rows))
}

// IncCatalogRequests increments the GeoServer request counter. A zero
// status counts a transport failure.
func (c *Collector) IncCatalogRequests(method string, status int) {
	c.catalogRequests.WithLabelValues(method, statusToString(status)).Inc()
}

// ObserveCatalogDuration records GeoServer request duration.
func (c *Collector) ObserveCatalogDuration(method string, duration time.Duration) {
	c.catalogDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, successLabel(success)).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePath(r)
		c.IncHTTPRequests(r.Method, path, statusToString(wrapped.statusCode))
		c.ObserveHTTPDuration(r.Method, path, time.Since(start))
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// routePath returns the matched route template so that action names and
// other path variables do not each create a series.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	case code == 0:
		return "error"
	default:
		return "unknown"
	}
}

var _ output.MetricsCollector = (*Collector)(nil)
