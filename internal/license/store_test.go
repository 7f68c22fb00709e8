package license

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/database"
	"github.com/fullpos/license-server/internal/dbtest"
	"github.com/fullpos/license-server/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newStore(t *testing.T, cache *database.Cache) (*Store, *gorm.DB, *dbtest.Clock) {
	t.Helper()
	db := dbtest.Open(t)
	clock := dbtest.NewClock(t0)
	s := NewStore(db, cache, DefaultDefaults, dbtest.DefaultProject)
	s.SetClock(clock.Now)
	return s, db, clock
}

func createLicense(t *testing.T, s *Store, db *gorm.DB, tipo models.LicenseTipo, dias, max int) *models.License {
	t.Helper()
	c := dbtest.Customer(t, db, "Colmado Don Pepe")
	l, err := s.Create(context.Background(), CreateInput{CustomerID: c.ID, Tipo: tipo, DiasValidez: dias, MaxDispositivos: max})
	require.NoError(t, err)
	return l
}

func TestCreate(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()
	c := dbtest.Customer(t, db, "Farmacia Central")

	l, err := s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: "full"})
	require.NoError(t, err)
	assert.Equal(t, models.EstadoPendiente, l.Estado)
	assert.Equal(t, models.TipoFull, l.Tipo)
	assert.Equal(t, 365, l.DiasValidez)
	assert.Equal(t, 2, l.MaxDispositivos)
	assert.Nil(t, l.FechaInicio)
	assert.Nil(t, l.FechaFin)
	assert.Regexp(t, `^FULL-`, l.LicenseKey)

	project := dbtest.Project(t, db, dbtest.DefaultProject)
	assert.Equal(t, project.ID, l.ProjectID)

	demo, err := s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: models.TipoDemo, ProjectCode: "fullpos"})
	require.NoError(t, err)
	assert.Equal(t, 15, demo.DiasValidez)
	assert.Equal(t, 1, demo.MaxDispositivos)
	assert.Equal(t, dbtest.Project(t, db, dbtest.BusinessProject).ID, demo.ProjectID)
}

func TestCreateValidation(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()
	c := dbtest.Customer(t, db, "Ferreteria")

	_, err := s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: "GOLD"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = s.Create(ctx, CreateInput{Tipo: models.TipoFull})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = s.Create(ctx, CreateInput{CustomerID: "missing", Tipo: models.TipoFull})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: models.TipoFull, DiasValidez: -1})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: models.TipoFull, ProjectCode: "NOPE"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: models.TipoFull, LicenseKey: "full-aaaaa-bbbbb-ccccc"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateInput{CustomerID: c.ID, Tipo: models.TipoFull, LicenseKey: "FULL-AAAAA-BBBBB-CCCCC"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestBlockAndActivateManual(t *testing.T) {
	s, db, clock := newStore(t, nil)
	ctx := context.Background()
	l := createLicense(t, s, db, models.TipoFull, 30, 1)

	blocked, err := s.Block(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoBloqueada, blocked.Estado)
	assert.Nil(t, blocked.FechaInicio, "block leaves dates untouched")

	clock.Advance(time.Hour)
	active, err := s.Unblock(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoActiva, active.Estado)
	require.NotNil(t, active.FechaInicio)
	assert.Equal(t, t0.Add(time.Hour), active.FechaInicio.UTC())
	assert.Equal(t, t0.Add(time.Hour+30*Day), active.FechaFin.UTC())

	var stored models.License
	require.NoError(t, db.First(&stored, "id = ?", l.ID).Error)
	assert.Equal(t, models.EstadoActiva, stored.Estado)
	assert.True(t, stored.FechaFin.Equal(*active.FechaFin))
}

func TestExtendDaysPersists(t *testing.T) {
	s, db, clock := newStore(t, nil)
	ctx := context.Background()
	l := createLicense(t, s, db, models.TipoFull, 30, 1)

	_, err := s.ExtendDays(ctx, l.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	pending, err := s.ExtendDays(ctx, l.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 35, pending.DiasValidez)
	assert.Nil(t, pending.FechaFin)

	_, err = s.ActivateManual(ctx, l.ID)
	require.NoError(t, err)

	clock.Advance(50 * Day)
	var stored models.License
	require.NoError(t, db.First(&stored, "id = ?", l.ID).Error)
	stored.Estado = models.EstadoVencida
	require.NoError(t, db.Model(&stored).Update("estado", models.EstadoVencida).Error)

	extended, err := s.ExtendDays(ctx, l.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoActiva, extended.Estado)
	assert.Equal(t, t0.Add(60*Day), extended.FechaFin.UTC())
	assert.Equal(t, 60, extended.DiasValidez)
}

func TestDeleteIsTerminal(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()
	l := createLicense(t, s, db, models.TipoFull, 30, 1)

	require.NoError(t, s.Delete(ctx, l.ID))
	require.NoError(t, s.Delete(ctx, l.ID), "deleting twice is a no-op")

	_, err := s.ActivateManual(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Block(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoEliminada, got.Estado)

	assert.ErrorIs(t, s.Delete(ctx, "missing"), apperr.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()
	l := createLicense(t, s, db, models.TipoDemo, 15, 1)

	_, err := s.ActivateManual(ctx, l.ID)
	require.NoError(t, err)

	tipo := models.TipoFull
	dias := 365
	max := 3
	notas := "upgraded"
	updated, err := s.Update(ctx, l.ID, UpdateInput{Tipo: &tipo, DiasValidez: &dias, MaxDispositivos: &max, Notas: &notas})
	require.NoError(t, err)
	assert.Equal(t, models.TipoFull, updated.Tipo)
	assert.Equal(t, 3, updated.MaxDispositivos)
	assert.Equal(t, "upgraded", updated.Notas)
	assert.Equal(t, updated.FechaInicio.Add(365*Day), *updated.FechaFin)

	zero := 0
	_, err = s.Update(ctx, l.ID, UpdateInput{MaxDispositivos: &zero})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestList(t *testing.T) {
	s, db, clock := newStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createLicense(t, s, db, models.TipoFull, 30, 1)
		clock.Advance(time.Minute)
	}
	blocked := createLicense(t, s, db, models.TipoDemo, 15, 1)
	_, err := s.Block(ctx, blocked.ID)
	require.NoError(t, err)

	rows, total, err := s.List(ctx, ListFilter{PerPage: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, rows, 2)
	assert.Equal(t, blocked.ID, rows[0].ID, "newest first")

	rows, total, err = s.List(ctx, ListFilter{Estado: "bloqueada"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, blocked.ID, rows[0].ID)

	rows, _, err = s.List(ctx, ListFilter{Search: blocked.LicenseKey[5:10]})
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestLinkCompany(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()
	l := createLicense(t, s, db, models.TipoFull, 30, 1)

	_, err := s.LinkCompany(ctx, l.ID, "", "")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	company, err := s.LinkCompany(ctx, l.ID, "", "Colmado Don Pepe SRL")
	require.NoError(t, err)
	assert.Equal(t, l.CustomerID, company.CustomerID)

	got, err := CompanyForLicense(db, l.ID)
	require.NoError(t, err)
	assert.Equal(t, company.ID, got)

	_, err = s.LinkCompany(ctx, l.ID, company.ID, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyLinked)

	other := createLicense(t, s, db, models.TipoFull, 30, 1)
	_, err = s.LinkCompany(ctx, other.ID, "missing", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	shared, err := s.LinkCompany(ctx, other.ID, company.ID, "")
	require.NoError(t, err)
	assert.Equal(t, company.ID, shared.ID)
}

func TestGetIsCachedAndInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, db, _ := newStore(t, database.NewCache(client))
	ctx := context.Background()
	l := createLicense(t, s, db, models.TipoFull, 30, 1)

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoPendiente, got.Estado)
	assert.True(t, mr.Exists(database.CacheKeyLicense+l.ID))

	_, err = s.Block(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(database.CacheKeyLicense+l.ID))

	got, err = s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoBloqueada, got.Estado)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveProject(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()
	def := dbtest.Project(t, db, dbtest.DefaultProject)
	biz := dbtest.Project(t, db, dbtest.BusinessProject)

	p, err := s.ResolveProject(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, def.ID, p.ID)

	p, err = s.ResolveProject(ctx, "", "fullpos")
	require.NoError(t, err)
	assert.Equal(t, biz.ID, p.ID)

	p, err = s.ResolveProject(ctx, biz.ID, "DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, biz.ID, p.ID, "project_id wins over project_code")

	_, err = s.ResolveProject(ctx, "nope", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegisterBusiness(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()

	in := RegisterInput{
		BusinessID:   "biz-100",
		BusinessName: "Colmado La Esquina",
		Role:         "colmado",
		OwnerName:    "Pedro",
		Phone:        "(809) 555-0101",
		Email:        " Pedro@Example.com ",
		TrialStart:   "2025-03-01T10:00:00Z",
		AppVersion:   "1.4.0",
	}
	c, err := s.RegisterBusiness(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, c.BusinessID)
	assert.Equal(t, "biz-100", *c.BusinessID)
	assert.Equal(t, "8095550101", c.ContactoTelefono)
	assert.Equal(t, "pedro@example.com", c.ContactoEmail)
	require.NotNil(t, c.TrialStartAt)
	assert.True(t, c.TrialStartAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))

	// Re-registering keeps the first trial start and updates the rest
	in.BusinessName = "Colmado La Esquina II"
	in.TrialStart = "2025-04-01T10:00:00Z"
	again, err := s.RegisterBusiness(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, "Colmado La Esquina II", again.NombreNegocio)
	assert.True(t, again.TrialStartAt.Equal(*c.TrialStartAt))

	var count int64
	require.NoError(t, db.Model(&models.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRegisterBusinessAdoptsCustomerByPhone(t *testing.T) {
	s, db, _ := newStore(t, nil)
	ctx := context.Background()

	pre := models.Customer{NombreNegocio: "Ferreteria Lopez", ContactoTelefono: "8295550199"}
	require.NoError(t, db.Create(&pre).Error)

	c, err := s.RegisterBusiness(ctx, RegisterInput{
		BusinessID:   "biz-200",
		BusinessName: "Ferreteria Lopez",
		Role:         "ferreteria",
		OwnerName:    "Ana",
		Phone:        "829-555-0199",
	})
	require.NoError(t, err)
	assert.Equal(t, pre.ID, c.ID)
	assert.Equal(t, "biz-200", *c.BusinessID)
	assert.Nil(t, c.TrialStartAt, "an unparseable trial_start is ignored")

	// The same customer cannot be claimed by another installation
	_, err = s.RegisterBusiness(ctx, RegisterInput{
		BusinessID:   "biz-201",
		BusinessName: "Ferreteria Lopez",
		Role:         "ferreteria",
		OwnerName:    "Ana",
		Phone:        "8295550199",
	})
	assert.ErrorIs(t, err, apperr.ErrBusinessConflict)
}

func TestRegisterBusinessValidation(t *testing.T) {
	s, _, _ := newStore(t, nil)
	_, err := s.RegisterBusiness(context.Background(), RegisterInput{
		BusinessID:   "biz-300",
		BusinessName: "Sin Telefono",
		Role:         "colmado",
		OwnerName:    "Luis",
		Phone:        "sin numero",
	})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = s.CustomerByBusinessID(context.Background(), "biz-300")
	assert.ErrorIs(t, err, apperr.ErrBusinessNotFound)
}
