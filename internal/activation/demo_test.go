package activation

import (
	"context"
	"testing"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartDemoCreatesAndActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.StartDemo(ctx, DemoRequest{
		NombreNegocio:    "Colmado El Primo",
		ContactoEmail:    "Primo@Example.com ",
		ContactoTelefono: "(809) 555-0101",
		DeviceID:         "POS-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.OK)
	assert.Equal(t, models.TipoDemo, res.Tipo)
	assert.Equal(t, models.EstadoActiva, res.Estado)
	assert.Equal(t, int64(1), res.Usados)
	assert.Equal(t, 1, res.MaxDispositivos)
	assert.Equal(t, res.FechaInicio.Add(15*license.Day), *res.FechaFin)
	assert.Regexp(t, `^DEMO-`, res.LicenseKey)
	assert.Equal(t, "primo@example.com", res.Customer.ContactoEmail)
	assert.Equal(t, "8095550101", res.Customer.ContactoTelefono)

	again, err := f.svc.StartDemo(ctx, DemoRequest{
		NombreNegocio: "Colmado El Primo",
		ContactoEmail: "primo@example.com",
		DeviceID:      "POS-1",
	})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.LicenseKey, again.LicenseKey)
	assert.Equal(t, res.Customer.ID, again.Customer.ID)
}

func TestStartDemoFindsCustomerByPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartDemo(ctx, DemoRequest{NombreNegocio: "Salon Bella", ContactoTelefono: "809-555-0199", DeviceID: "A"})
	require.NoError(t, err)

	second, err := f.svc.StartDemo(ctx, DemoRequest{NombreNegocio: "Salon Bella", ContactoTelefono: "8095550199", DeviceID: "B"})
	require.NoError(t, err)

	assert.Equal(t, first.Customer.ID, second.Customer.ID)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.LicenseKey, second.LicenseKey)
}

func TestStartDemoReplacesExpiredDemo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := DemoRequest{NombreNegocio: "Taller Rivera", ContactoEmail: "rivera@example.com", DeviceID: "POS-9"}

	first, err := f.svc.StartDemo(ctx, req)
	require.NoError(t, err)

	f.clock.Advance(16 * license.Day)

	second, err := f.svc.StartDemo(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.LicenseKey, second.LicenseKey)
}

func TestStartDemoValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []DemoRequest{
		{ContactoEmail: "a@b.c", DeviceID: "D"},
		{NombreNegocio: "X", ContactoEmail: "a@b.c"},
		{NombreNegocio: "X", DeviceID: "D", ContactoTelefono: "n/a"},
	}
	for _, c := range cases {
		_, err := f.svc.StartDemo(ctx, c)
		assert.ErrorIs(t, err, apperr.ErrBadRequest)
	}
}
