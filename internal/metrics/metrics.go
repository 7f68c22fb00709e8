// Package metrics exposes prometheus collectors for licensing, sync and backups.
package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application. A nil *Registry records nothing.
type Registry struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Licensing
	ActivationsTotal  *prometheus.CounterVec
	ChecksTotal       *prometheus.CounterVec
	TransitionsTotal  *prometheus.CounterVec
	LicenseFilesTotal *prometheus.CounterVec

	// Sync
	GateTotal        *prometheus.CounterVec
	SyncRowsTotal    *prometheus.CounterVec
	SyncCallDuration *prometheus.HistogramVec

	// Backups
	BackupsTotal      *prometheus.CounterVec
	BackupSizeBytes   prometheus.Histogram
	BackupMirrorTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every collector initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.initHTTPMetrics()
	r.initLicensingMetrics()
	r.initSyncMetrics()
	r.initBackupMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}
