package models

import (
	"time"

	"gorm.io/gorm"
)

// AdminUser is an operator of the license back office.
type AdminUser struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	Username         string     `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Password         string     `gorm:"size:255;not null" json:"-"`
	FullName         string     `gorm:"size:150" json:"full_name"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	TwoFactorEnabled bool       `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string     `gorm:"size:255" json:"-"`
	LastLogin        *time.Time `json:"last_login"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

func (u *AdminUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	return nil
}

// SystemPreference represents system-wide preferences
type SystemPreference struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	Key       string `gorm:"column:key;size:100;uniqueIndex;not null" json:"key"`
	Value     string `gorm:"column:value;type:text" json:"value"`
	ValueType string `gorm:"column:value_type;size:20;default:string" json:"value_type"` // string, int, bool, json
}

func (SystemPreference) TableName() string {
	return "system_preferences"
}
