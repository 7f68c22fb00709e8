package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Backup is an opaque JSON snapshot uploaded by a device.
type Backup struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	CompanyID  string         `gorm:"size:36;not null;index:idx_backups_company_created,priority:1" json:"company_id"`
	DeviceID   string         `gorm:"size:200;not null;index" json:"device_id"`
	BackupJSON datatypes.JSON `gorm:"column:backup_json;not null" json:"backup_json,omitempty"`
	SizeBytes  int            `gorm:"default:0" json:"size_bytes"`
	CreatedAt  time.Time      `gorm:"index:idx_backups_company_created,priority:2" json:"created_at"`
}

func (Backup) TableName() string {
	return "backups"
}

func (b *Backup) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = newID()
	}
	return nil
}

// SyncDirection tells whether a sync call uploaded or downloaded rows.
type SyncDirection string

const (
	SyncPush SyncDirection = "PUSH"
	SyncPull SyncDirection = "PULL"
)

// SyncLog records every push and pull for audit.
type SyncLog struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	CompanyID  string         `gorm:"size:36;not null;index" json:"company_id"`
	LicenseID  string         `gorm:"size:36;not null;index" json:"license_id"`
	DeviceID   string         `gorm:"size:200;not null" json:"device_id"`
	Direction  SyncDirection  `gorm:"size:4;not null" json:"direction"`
	LastSyncAt *time.Time     `json:"last_sync_at"`
	Summary    datatypes.JSON `json:"summary"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}

func (s *SyncLog) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	return nil
}
