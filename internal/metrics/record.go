package metrics

import (
	"time"
)

// OK is the code label recorded for successful operations.
const OK = "OK"

func codeLabel(code string) string {
	if code == "" {
		return OK
	}
	return code
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordActivation counts an activate, auto-activate or demo attempt. An empty
// code records success.
func (r *Registry) RecordActivation(kind, code string) {
	if r == nil {
		return
	}
	r.ActivationsTotal.WithLabelValues(kind, codeLabel(code)).Inc()
}

// RecordCheck counts a license check outcome.
func (r *Registry) RecordCheck(code string) {
	if r == nil {
		return
	}
	r.ChecksTotal.WithLabelValues(codeLabel(code)).Inc()
}

// RecordTransition counts an admin transition such as block or extend.
func (r *Registry) RecordTransition(transition string) {
	if r == nil {
		return
	}
	r.TransitionsTotal.WithLabelValues(transition).Inc()
}

// RecordLicenseFile counts an export or verification.
func (r *Registry) RecordLicenseFile(operation, code string) {
	if r == nil {
		return
	}
	r.LicenseFilesTotal.WithLabelValues(operation, codeLabel(code)).Inc()
}

// RecordGate counts a sync gate evaluation.
func (r *Registry) RecordGate(code string) {
	if r == nil {
		return
	}
	r.GateTotal.WithLabelValues(codeLabel(code)).Inc()
}

// RecordSyncRows adds n rows for direction/result (inserted, updated, deleted, skipped, pulled).
func (r *Registry) RecordSyncRows(direction, result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.SyncRowsTotal.WithLabelValues(direction, result).Add(float64(n))
}

// RecordSyncCall observes the duration of a push or pull.
func (r *Registry) RecordSyncCall(direction string, duration time.Duration) {
	if r == nil {
		return
	}
	r.SyncCallDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordBackup counts a backup operation (push, pull, history, pruned).
func (r *Registry) RecordBackup(operation string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.BackupsTotal.WithLabelValues(operation).Add(float64(n))
}

// ObserveBackupSize records the size of a pushed backup.
func (r *Registry) ObserveBackupSize(bytes int) {
	if r == nil {
		return
	}
	r.BackupSizeBytes.Observe(float64(bytes))
}

// RecordMirror counts an off-site mirror upload.
func (r *Registry) RecordMirror(ok bool) {
	if r == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	r.BackupMirrorTotal.WithLabelValues(status).Inc()
}
