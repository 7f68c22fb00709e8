package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fullpos_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
}

func (r *Registry) initLicensingMetrics() {
	r.ActivationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_activations_total",
			Help: "Activation attempts by kind and outcome code",
		},
		[]string{"kind", "code"},
	)

	r.ChecksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_license_checks_total",
			Help: "License checks by outcome code",
		},
		[]string{"code"},
	)

	r.TransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_license_transitions_total",
			Help: "Admin license transitions",
		},
		[]string{"transition"},
	)

	r.LicenseFilesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_license_files_total",
			Help: "Offline license file exports and verifications by outcome",
		},
		[]string{"operation", "code"},
	)
}

func (r *Registry) initSyncMetrics() {
	r.GateTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_sync_gate_total",
			Help: "Sync gate evaluations by outcome code",
		},
		[]string{"code"},
	)

	r.SyncRowsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_sync_rows_total",
			Help: "Rows handled by sync calls, by direction and result",
		},
		[]string{"direction", "result"},
	)

	r.SyncCallDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fullpos_sync_call_duration_seconds",
			Help:    "Duration of sync push and pull calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)
}

func (r *Registry) initBackupMetrics() {
	r.BackupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_backups_total",
			Help: "Backup operations by kind",
		},
		[]string{"operation"},
	)

	r.BackupSizeBytes = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fullpos_backup_size_bytes",
			Help:    "Size of pushed backups",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	r.BackupMirrorTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fullpos_backup_mirror_total",
			Help: "Off-site backup mirror uploads by status",
		},
		[]string{"status"},
	)
}
