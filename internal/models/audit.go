package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionDelete   AuditAction = "delete"
	AuditActionLogin    AuditAction = "login"
	AuditActionLogout   AuditAction = "logout"
	AuditActionBlock    AuditAction = "block"
	AuditActionUnblock  AuditAction = "unblock"
	AuditActionActivate AuditAction = "activate"
	AuditActionExtend   AuditAction = "extend"
	AuditActionRevoke   AuditAction = "revoke"
	AuditActionExport   AuditAction = "export"
	AuditActionLink     AuditAction = "link"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	UserID      string      `gorm:"size:36;index" json:"user_id"`
	Username    string      `gorm:"size:100" json:"username"`
	Action      AuditAction `gorm:"size:50;not null;index" json:"action"`
	EntityType  string      `gorm:"size:50;index" json:"entity_type"` // license, activation, company
	EntityID    string      `gorm:"size:36;index" json:"entity_id"`
	Description string      `gorm:"size:500" json:"description"`
	Method      string      `gorm:"size:10" json:"method"`
	Path        string      `gorm:"size:255" json:"path"`
	StatusCode  int         `json:"status_code"`
	IPAddress   string      `gorm:"size:50" json:"ip_address"`
	UserAgent   string      `gorm:"size:255" json:"user_agent"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return nil
}
