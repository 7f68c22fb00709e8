// Package license owns license rows and every transition of their state machine.
package license

import (
	"math"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/models"
)

// Day is the unit of dias_validez.
const Day = 24 * time.Hour

// Normalize returns t in UTC at the precision postgres stores.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// AddDays returns t plus n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * Day)
}

// CeilDays returns the number of days between from and to, rounded up.
func CeilDays(from, to time.Time) int {
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

// StartIfNeeded assigns the validity window on first activation. It reports whether
// the dates changed.
func StartIfNeeded(l *models.License, now time.Time) bool {
	if l.FechaInicio != nil {
		return false
	}
	inicio := Normalize(now)
	fin := AddDays(inicio, l.DiasValidez)
	l.FechaInicio = &inicio
	l.FechaFin = &fin
	l.Estado = models.EstadoActiva
	return true
}

// MarkExpired flips the license to VENCIDA when fecha_fin has passed. It reports
// whether the state changed.
func MarkExpired(l *models.License, now time.Time) bool {
	if l.Estado == models.EstadoVencida || !l.ExpiredAt(now) {
		return false
	}
	l.Estado = models.EstadoVencida
	return true
}

// IsExpired reports whether the license is VENCIDA or past its fecha_fin.
func IsExpired(l *models.License, now time.Time) bool {
	return l.Estado == models.EstadoVencida || l.ExpiredAt(now)
}

// Rearm is the manual activate/unblock transition. Missing or lapsed windows restart
// from now; a live window is kept.
func Rearm(l *models.License, now time.Time) {
	now = Normalize(now)
	if l.FechaInicio == nil || l.FechaFin == nil || l.FechaFin.Before(now) {
		if l.DiasValidez <= 0 {
			l.DiasValidez = 1
		}
		inicio := now
		fin := AddDays(inicio, l.DiasValidez)
		l.FechaInicio = &inicio
		l.FechaFin = &fin
	}
	l.Estado = models.EstadoActiva
}

// Extend adds n days. Unstarted licenses only grow dias_validez; started ones move
// fecha_fin from max(now, fecha_fin) and recompute dias_validez to match.
func Extend(l *models.License, n int, now time.Time) error {
	if n <= 0 {
		return apperr.ErrBadRequest.WithMessage("days must be greater than zero")
	}
	now = Normalize(now)

	if l.FechaInicio == nil || l.FechaFin == nil {
		l.DiasValidez += n
		return nil
	}

	base := *l.FechaFin
	if now.After(base) {
		base = now
	}
	fin := AddDays(base, n)
	l.FechaFin = &fin

	dias := CeilDays(*l.FechaInicio, fin)
	if dias < 1 {
		dias = 1
	}
	l.DiasValidez = dias

	if l.Estado == models.EstadoVencida && fin.After(now) {
		l.Estado = models.EstadoActiva
	}
	return nil
}

// SetDiasValidez changes the validity length, moving fecha_fin for started licenses.
func SetDiasValidez(l *models.License, dias int) error {
	if dias <= 0 {
		return apperr.ErrBadRequest.WithMessage("dias_validez must be greater than zero")
	}
	l.DiasValidez = dias
	if l.FechaInicio != nil {
		fin := AddDays(*l.FechaInicio, dias)
		l.FechaFin = &fin
	}
	return nil
}
