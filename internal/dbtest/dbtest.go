// Package dbtest opens throwaway databases for package tests.
package dbtest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fullpos/license-server/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// DefaultProject and BusinessProject are seeded by Open.
const (
	DefaultProject  = "DEFAULT"
	BusinessProject = "FULLPOS"
)

// Open returns a migrated in-memory SQLite database private to the test.
// A single connection serializes transactions the way row locks do on postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db, DefaultProject, BusinessProject))
	return db
}

// Project returns the seeded project with the given code.
func Project(t testing.TB, db *gorm.DB, code string) models.Project {
	t.Helper()
	var p models.Project
	require.NoError(t, db.Where("code = ?", code).First(&p).Error)
	return p
}

// Customer inserts a customer.
func Customer(t testing.TB, db *gorm.DB, name string) models.Customer {
	t.Helper()
	c := models.Customer{NombreNegocio: name}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current fake instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Tenant is a started license with one activated device, linked to a company.
type Tenant struct {
	License    models.License
	Activation models.Activation
	Company    models.Company
}

// NewTenant provisions a Tenant in the default project, valid from start for 365 days.
func NewTenant(t testing.TB, db *gorm.DB, key, device string, start time.Time) Tenant {
	t.Helper()
	start = start.UTC()
	fin := start.Add(365 * 24 * time.Hour)
	project := Project(t, db, DefaultProject)
	customer := Customer(t, db, "Tenant "+key)

	tn := Tenant{
		License: models.License{
			ProjectID:       project.ID,
			CustomerID:      &customer.ID,
			LicenseKey:      key,
			Tipo:            models.TipoFull,
			DiasValidez:     365,
			MaxDispositivos: 2,
			Estado:          models.EstadoActiva,
			FechaInicio:     &start,
			FechaFin:        &fin,
		},
	}
	require.NoError(t, db.Create(&tn.License).Error)

	tn.Activation = models.Activation{
		LicenseID:   tn.License.ID,
		ProjectID:   project.ID,
		DeviceID:    device,
		Estado:      models.ActivationActiva,
		ActivatedAt: start,
	}
	require.NoError(t, db.Create(&tn.Activation).Error)

	tn.Company = models.Company{Name: "Company " + key, CustomerID: &customer.ID}
	require.NoError(t, db.Create(&tn.Company).Error)
	require.NoError(t, db.Create(&models.CompanyLicense{CompanyID: tn.Company.ID, LicenseID: tn.License.ID}).Error)
	return tn
}
