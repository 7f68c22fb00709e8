package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LicenseTipo is the commercial kind of a license.
type LicenseTipo string

const (
	TipoDemo  LicenseTipo = "DEMO"
	TipoFull  LicenseTipo = "FULL"
	TipoTrial LicenseTipo = "TRIAL"
)

// LicenseEstado is the lifecycle state of a license.
type LicenseEstado string

const (
	EstadoPendiente LicenseEstado = "PENDIENTE"
	EstadoActiva    LicenseEstado = "ACTIVA"
	EstadoVencida   LicenseEstado = "VENCIDA"
	EstadoBloqueada LicenseEstado = "BLOQUEADA"
	EstadoEliminada LicenseEstado = "ELIMINADA"
)

// ActivationEstado is the state of a device binding.
type ActivationEstado string

const (
	ActivationActiva   ActivationEstado = "ACTIVA"
	ActivationRevocada ActivationEstado = "REVOCADA"
)

func newID() string {
	return uuid.NewString()
}

// Project groups licenses of one product line. License keys are unique per project.
type Project struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Code      string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:150" json:"name"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return nil
}

// Customer is the business that owns licenses.
type Customer struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	BusinessID       *string    `gorm:"size:100;uniqueIndex" json:"business_id"`
	NombreNegocio    string     `gorm:"size:200;not null" json:"nombre_negocio"`
	ContactoNombre   string     `gorm:"size:150" json:"contacto_nombre"`
	ContactoTelefono string     `gorm:"size:30;index" json:"contacto_telefono"`
	ContactoEmail    string     `gorm:"size:150;index" json:"contacto_email"`
	RolNegocio       string     `gorm:"size:100" json:"rol_negocio"`
	AppVersion       string     `gorm:"size:50" json:"app_version"`
	TrialStartAt     *time.Time `json:"trial_start_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}

// License is a purchased or trial entitlement. Dates are set together on first activation.
type License struct {
	ID              string        `gorm:"primaryKey;size:36" json:"id"`
	ProjectID       string        `gorm:"size:36;not null;uniqueIndex:idx_licenses_project_key,priority:1" json:"project_id"`
	CustomerID      *string       `gorm:"size:36;index" json:"customer_id"`
	LicenseKey      string        `gorm:"size:64;not null;uniqueIndex:idx_licenses_project_key,priority:2" json:"license_key"`
	Tipo            LicenseTipo   `gorm:"size:10;not null" json:"tipo"`
	DiasValidez     int           `gorm:"not null" json:"dias_validez"`
	MaxDispositivos int           `gorm:"not null;default:1" json:"max_dispositivos"`
	Estado          LicenseEstado `gorm:"size:15;not null;index" json:"estado"`
	FechaInicio     *time.Time    `json:"fecha_inicio"`
	FechaFin        *time.Time    `json:"fecha_fin"`
	Notas           string        `gorm:"type:text" json:"notas"`
	CreatedAt       time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (License) TableName() string {
	return "licenses"
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = newID()
	}
	return nil
}

// Started reports whether the validity window has been assigned.
func (l *License) Started() bool {
	return l.FechaInicio != nil && l.FechaFin != nil
}

// ExpiredAt reports whether fecha_fin is strictly before now.
func (l *License) ExpiredAt(now time.Time) bool {
	return l.FechaFin != nil && l.FechaFin.Before(now)
}

// Activation binds one device to one license and consumes a slot while ACTIVA.
type Activation struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	LicenseID   string           `gorm:"size:36;not null;uniqueIndex:idx_activation_license_device,priority:1" json:"license_id"`
	ProjectID   string           `gorm:"size:36;not null;index" json:"project_id"`
	DeviceID    string           `gorm:"size:200;not null;uniqueIndex:idx_activation_license_device,priority:2;index" json:"device_id"`
	Estado      ActivationEstado `gorm:"size:10;not null" json:"estado"`
	ActivatedAt time.Time        `gorm:"index" json:"activated_at"`
	LastCheckAt *time.Time       `json:"last_check_at"`
}

func (Activation) TableName() string {
	return "license_activations"
}

func (a *Activation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return nil
}

// Company is the sync tenant.
type Company struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Name       string    `gorm:"size:200;not null" json:"name"`
	CustomerID *string   `gorm:"size:36;index" json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Company) TableName() string {
	return "companies"
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}

// CompanyLicense links a license to exactly one company.
type CompanyLicense struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CompanyID string    `gorm:"size:36;not null;index" json:"company_id"`
	LicenseID string    `gorm:"size:36;not null;uniqueIndex" json:"license_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (CompanyLicense) TableName() string {
	return "company_licenses"
}

func (c *CompanyLicense) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}
