package license

import (
	"testing"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func started(dias int, inicio time.Time) *models.License {
	fin := AddDays(inicio, dias)
	return &models.License{
		Tipo:            models.TipoFull,
		DiasValidez:     dias,
		MaxDispositivos: 1,
		Estado:          models.EstadoActiva,
		FechaInicio:     &inicio,
		FechaFin:        &fin,
	}
}

func TestStartIfNeeded(t *testing.T) {
	l := &models.License{DiasValidez: 30, Estado: models.EstadoPendiente}

	require.True(t, StartIfNeeded(l, t0))
	assert.Equal(t, models.EstadoActiva, l.Estado)
	assert.Equal(t, t0, *l.FechaInicio)
	assert.Equal(t, t0.Add(30*Day), *l.FechaFin)

	assert.False(t, StartIfNeeded(l, t0.Add(time.Hour)), "already started")
	assert.Equal(t, t0, *l.FechaInicio)
}

func TestMarkExpired(t *testing.T) {
	l := started(10, t0)

	assert.False(t, MarkExpired(l, t0.Add(10*Day)), "fecha_fin equal to now is still valid")
	assert.True(t, MarkExpired(l, t0.Add(10*Day+time.Second)))
	assert.Equal(t, models.EstadoVencida, l.Estado)
	assert.False(t, MarkExpired(l, t0.Add(11*Day)), "already VENCIDA")

	pending := &models.License{Estado: models.EstadoPendiente}
	assert.False(t, MarkExpired(pending, t0))
}

func TestRearm(t *testing.T) {
	tests := []struct {
		name       string
		license    *models.License
		now        time.Time
		wantInicio time.Time
		wantFin    time.Time
	}{
		{
			name:       "missing dates start now",
			license:    &models.License{DiasValidez: 15, Estado: models.EstadoPendiente},
			now:        t0,
			wantInicio: t0,
			wantFin:    t0.Add(15 * Day),
		},
		{
			name:       "live window is kept",
			license:    func() *models.License { l := started(30, t0); l.Estado = models.EstadoBloqueada; return l }(),
			now:        t0.Add(5 * Day),
			wantInicio: t0,
			wantFin:    t0.Add(30 * Day),
		},
		{
			name:       "lapsed window rearms from now",
			license:    func() *models.License { l := started(30, t0); l.Estado = models.EstadoVencida; return l }(),
			now:        t0.Add(40 * Day),
			wantInicio: t0.Add(40 * Day),
			wantFin:    t0.Add(70 * Day),
		},
		{
			name:       "zero days default to one",
			license:    &models.License{DiasValidez: 0, Estado: models.EstadoPendiente},
			now:        t0,
			wantInicio: t0,
			wantFin:    t0.Add(Day),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Rearm(tt.license, tt.now)
			assert.Equal(t, models.EstadoActiva, tt.license.Estado)
			assert.Equal(t, tt.wantInicio, *tt.license.FechaInicio)
			assert.Equal(t, tt.wantFin, *tt.license.FechaFin)
		})
	}
}

func TestExtend(t *testing.T) {
	t.Run("rejects non-positive days", func(t *testing.T) {
		l := started(10, t0)
		err := Extend(l, 0, t0)
		assert.ErrorIs(t, err, apperr.ErrBadRequest)
	})

	t.Run("unstarted only grows dias_validez", func(t *testing.T) {
		l := &models.License{DiasValidez: 10, Estado: models.EstadoPendiente}
		require.NoError(t, Extend(l, 5, t0))
		assert.Equal(t, 15, l.DiasValidez)
		assert.Nil(t, l.FechaInicio)
		assert.Nil(t, l.FechaFin)
	})

	t.Run("running window extends from fecha_fin", func(t *testing.T) {
		l := started(30, t0)
		require.NoError(t, Extend(l, 10, t0.Add(5*Day)))
		assert.Equal(t, t0.Add(40*Day), *l.FechaFin)
		assert.Equal(t, 40, l.DiasValidez)
		assert.Equal(t, models.EstadoActiva, l.Estado)
	})

	t.Run("expired window extends from now and reactivates", func(t *testing.T) {
		l := started(30, t0)
		l.Estado = models.EstadoVencida
		now := t0.Add(45*Day + 6*time.Hour)

		require.NoError(t, Extend(l, 10, now))
		assert.Equal(t, now.Add(10*Day), *l.FechaFin)
		assert.Equal(t, 56, l.DiasValidez, "ceil(55.25 days)")
		assert.Equal(t, models.EstadoActiva, l.Estado)
	})

	t.Run("blocked stays blocked", func(t *testing.T) {
		l := started(30, t0)
		l.Estado = models.EstadoBloqueada
		require.NoError(t, Extend(l, 10, t0))
		assert.Equal(t, models.EstadoBloqueada, l.Estado)
	})
}

func TestSetDiasValidez(t *testing.T) {
	l := started(30, t0)
	require.NoError(t, SetDiasValidez(l, 60))
	assert.Equal(t, t0.Add(60*Day), *l.FechaFin)

	pending := &models.License{DiasValidez: 30}
	require.NoError(t, SetDiasValidez(pending, 7))
	assert.Nil(t, pending.FechaFin)

	assert.Error(t, SetDiasValidez(l, 0))
}

func TestExtendProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("extend keeps dias_validez consistent with the window", prop.ForAll(
		func(dias, n, offsetHours int) bool {
			l := started(dias, t0)
			now := t0.Add(time.Duration(offsetHours) * time.Hour)
			oldFin := *l.FechaFin

			if err := Extend(l, n, now); err != nil {
				return false
			}

			base := oldFin
			if now.After(base) {
				base = now
			}
			if !l.FechaFin.Equal(base.Add(time.Duration(n) * Day)) {
				return false
			}
			covers := !AddDays(*l.FechaInicio, l.DiasValidez).Before(*l.FechaFin)
			tight := AddDays(*l.FechaInicio, l.DiasValidez-1).Before(*l.FechaFin)
			return l.DiasValidez >= 1 && covers && tight
		},
		gen.IntRange(1, 400),
		gen.IntRange(1, 400),
		gen.IntRange(-48, 24*800),
	))

	properties.Property("dates are set together under any transition sequence", prop.ForAll(
		func(ops []int) bool {
			l := &models.License{DiasValidez: 10, Estado: models.EstadoPendiente}
			now := t0
			for _, op := range ops {
				now = now.Add(7 * time.Hour)
				switch op {
				case 0:
					StartIfNeeded(l, now)
				case 1:
					MarkExpired(l, now)
				case 2:
					Rearm(l, now)
				case 3:
					_ = Extend(l, 3, now)
				case 4:
					_ = SetDiasValidez(l, 20)
				case 5:
					now = now.Add(30 * Day)
				}
				if (l.FechaInicio == nil) != (l.FechaFin == nil) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
