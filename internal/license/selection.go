package license

import (
	"time"

	"github.com/fullpos/license-server/internal/models"
)

// SelectMode decides which rows count as usable when picking a customer's license.
type SelectMode int

const (
	// SelectStarted accepts only ACTIVA licenses with a running window.
	SelectStarted SelectMode = iota
	// SelectActivatable also accepts PENDIENTE licenses, which the next activation starts.
	SelectActivatable
)

// ScanLimit bounds how many of a customer's licenses are considered.
const ScanLimit = 25

// Selection is the outcome of SelectNewest. Blocked is set when a BLOQUEADA row was
// reached before any usable one; License then points at the blocked row.
type Selection struct {
	License *models.License
	Blocked bool
}

// Found reports whether a usable license was selected.
func (s Selection) Found() bool {
	return s.License != nil && !s.Blocked
}

// SelectNewest scans rows ordered newest created_at first. ELIMINADA, VENCIDA and
// date-expired rows are skipped; a BLOQUEADA row short-circuits the scan.
func SelectNewest(rows []models.License, now time.Time, mode SelectMode) Selection {
	for i := range rows {
		l := &rows[i]
		switch l.Estado {
		case models.EstadoEliminada, models.EstadoVencida:
			continue
		case models.EstadoBloqueada:
			return Selection{License: l, Blocked: true}
		}
		if l.ExpiredAt(now) {
			continue
		}
		switch mode {
		case SelectStarted:
			if l.Estado == models.EstadoActiva && l.Started() {
				return Selection{License: l}
			}
		case SelectActivatable:
			if l.Estado == models.EstadoActiva || l.Estado == models.EstadoPendiente {
				return Selection{License: l}
			}
		}
	}
	return Selection{}
}
