package license

import (
	"testing"
	"time"

	"github.com/fullpos/license-server/internal/models"
	"github.com/stretchr/testify/assert"
)

func row(key string, estado models.LicenseEstado, startedAt *time.Time, dias int) models.License {
	l := models.License{LicenseKey: key, Estado: estado, DiasValidez: dias}
	if startedAt != nil {
		fin := AddDays(*startedAt, dias)
		inicio := *startedAt
		l.FechaInicio = &inicio
		l.FechaFin = &fin
	}
	return l
}

func TestSelectNewest(t *testing.T) {
	now := t0
	recent := t0.Add(-2 * Day)
	old := t0.Add(-100 * Day)

	tests := []struct {
		name        string
		rows        []models.License
		mode        SelectMode
		wantKey     string
		wantBlocked bool
	}{
		{
			name:    "newest active wins",
			rows:    []models.License{row("NEW", models.EstadoActiva, &recent, 30), row("OLD", models.EstadoActiva, &recent, 30)},
			mode:    SelectStarted,
			wantKey: "NEW",
		},
		{
			name:        "blocked newest short-circuits an older valid license",
			rows:        []models.License{row("BLK", models.EstadoBloqueada, &recent, 30), row("OK", models.EstadoActiva, &recent, 30)},
			mode:        SelectStarted,
			wantKey:     "BLK",
			wantBlocked: true,
		},
		{
			name:    "newer valid license wins over an older blocked one",
			rows:    []models.License{row("OK", models.EstadoActiva, &recent, 30), row("BLK", models.EstadoBloqueada, &recent, 30)},
			mode:    SelectStarted,
			wantKey: "OK",
		},
		{
			name: "expired, deleted and vencida rows are skipped",
			rows: []models.License{
				row("DEL", models.EstadoEliminada, &recent, 30),
				row("VEN", models.EstadoVencida, &recent, 30),
				row("LAPSED", models.EstadoActiva, &old, 30),
				row("OK", models.EstadoActiva, &recent, 30),
			},
			mode:    SelectStarted,
			wantKey: "OK",
		},
		{
			name: "deleted blocked license does not block",
			rows: []models.License{row("DEL", models.EstadoEliminada, &recent, 30), row("OK", models.EstadoActiva, &recent, 30)},
			mode: SelectStarted, wantKey: "OK",
		},
		{
			name: "pending is not usable for started mode",
			rows: []models.License{row("PEN", models.EstadoPendiente, nil, 30)},
			mode: SelectStarted,
		},
		{
			name:    "pending is usable for activation",
			rows:    []models.License{row("PEN", models.EstadoPendiente, nil, 30), row("OK", models.EstadoActiva, &recent, 30)},
			mode:    SelectActivatable,
			wantKey: "PEN",
		},
		{
			name: "nothing usable",
			rows: []models.License{row("LAPSED", models.EstadoActiva, &old, 30)},
			mode: SelectActivatable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := SelectNewest(tt.rows, now, tt.mode)
			if tt.wantKey == "" {
				assert.Nil(t, sel.License)
				assert.False(t, sel.Found())
				return
			}
			if assert.NotNil(t, sel.License) {
				assert.Equal(t, tt.wantKey, sel.License.LicenseKey)
			}
			assert.Equal(t, tt.wantBlocked, sel.Blocked)
			assert.Equal(t, !tt.wantBlocked, sel.Found())
		})
	}
}

func TestGenerateKey(t *testing.T) {
	full, err := GenerateKey(models.TipoFull)
	assert.NoError(t, err)
	assert.Regexp(t, `^FULL-[A-HJ-NP-Z2-9]{5}-[A-HJ-NP-Z2-9]{5}-[A-HJ-NP-Z2-9]{5}$`, full)

	demo, err := GenerateKey(models.TipoDemo)
	assert.NoError(t, err)
	assert.Regexp(t, `^DEMO-`, demo)
	assert.NotEqual(t, full[5:], demo[5:])
}
