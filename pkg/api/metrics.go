package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/ipfdb/pkg/codec"
	"github.com/ssargent/ipfdb/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestsInFlight *prometheus.GaugeVec
	httpRequestDuration  *prometheus.HistogramVec

	// Catalog metrics
	importsTotal          *prometheus.CounterVec
	profilesImportedTotal *prometheus.CounterVec
	profilesExportedTotal prometheus.Counter
	declarationsTotal     prometheus.Counter
	catalogProfiles       prometheus.Gauge
	catalogDiskSizeBytes  prometheus.Gauge

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// HTTP request metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfdb_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ipfdb_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipfdb_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// Catalog metrics
		importsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfdb_imports_total",
				Help: "Total number of catalog imports",
			},
			[]string{"status"},
		),

		profilesImportedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfdb_profiles_imported_total",
				Help: "Total number of profiles read by imports",
			},
			[]string{"action"},
		),

		profilesExportedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ipfdb_profiles_exported_total",
				Help: "Total number of profiles composed by exports",
			},
		),

		declarationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ipfdb_format_declarations_total",
				Help: "Total number of format declarations emitted by exports",
			},
		),

		catalogProfiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipfdb_catalog_profiles",
				Help: "Number of profiles in the catalog",
			},
		),

		catalogDiskSizeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipfdb_catalog_disk_size_bytes",
				Help: "Disk space used by the catalog store",
			},
		),

		// Authentication metrics
		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfdb_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		// Health check metrics
		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfdb_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	// codec caches are process wide, read them at scrape time
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "ipfdb_codec_cache_hits_total",
			Help: "Number of codec conversions served from cache",
		},
		func() float64 { return float64(codec.CacheStats().Hits) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "ipfdb_codec_cache_misses_total",
			Help: "Number of codec conversions that missed the cache",
		},
		func() float64 { return float64(codec.CacheStats().Misses) },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordImport records the outcome of an import. res may be nil when the
// import failed before reading anything.
func (m *Metrics) RecordImport(res *store.ImportResult, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.importsTotal.WithLabelValues(status).Inc()

	if res == nil {
		return
	}
	m.profilesImportedTotal.WithLabelValues("upserted").Add(float64(res.Upserted))
	m.profilesImportedTotal.WithLabelValues("removed").Add(float64(res.Removed))
	m.profilesImportedTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
}

// RecordExport records the profiles and declarations one export composed
func (m *Metrics) RecordExport(profiles, declarations int) {
	m.profilesExportedTotal.Add(float64(profiles))
	m.declarationsTotal.Add(float64(declarations))
}

// UpdateCatalogStats updates catalog gauges from store statistics
func (m *Metrics) UpdateCatalogStats(stats *store.Stats) {
	m.catalogProfiles.Set(float64(stats.Profiles))
	m.catalogDiskSizeBytes.Set(stats.DiskSizeMB * 1024 * 1024)
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Record request in flight
		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Create response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streamed exports reach the client as they are composed
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
