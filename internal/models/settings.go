package models

import "time"

// SettingsCategorySquare groups every row owned by the catalog sync integration
const SettingsCategorySquare = "square"

// SettingType describes how a business setting value is encoded
type SettingType string

const (
	SettingTypeText    SettingType = "text"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeNumber  SettingType = "number"
	SettingTypeJSON    SettingType = "json"
)

// BusinessSetting is one key/value row of the free-form settings table
type BusinessSetting struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Category     string      `gorm:"type:varchar(50);not null;uniqueIndex:idx_business_settings_key" json:"category"`
	SettingKey   string      `gorm:"type:varchar(100);not null;uniqueIndex:idx_business_settings_key" json:"settingKey"`
	SettingValue string      `gorm:"type:text" json:"settingValue"`
	SettingType  SettingType `gorm:"type:varchar(20);default:'text'" json:"settingType"`
	DisplayName  string      `gorm:"type:varchar(255)" json:"displayName"`
	Description  string      `gorm:"type:text" json:"description"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for BusinessSetting
func (BusinessSetting) TableName() string {
	return "business_settings"
}

// StoredSecret holds an encrypted secret for deployments without Secret Manager
type StoredSecret struct {
	Key        string `gorm:"column:secret_key;type:varchar(255);primaryKey" json:"key"`
	Ciphertext string `gorm:"type:text;not null" json:"-"`
	Nonce      string `gorm:"type:varchar(64);not null" json:"-"`
	Algorithm  string `gorm:"type:varchar(32);not null" json:"algorithm"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for StoredSecret
func (StoredSecret) TableName() string {
	return "secrets"
}

// SyncLock is a named run lock row with an expiry
type SyncLock struct {
	Name      string    `gorm:"type:varchar(100);primaryKey" json:"name"`
	Owner     string    `gorm:"type:varchar(64);not null" json:"owner"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for SyncLock
func (SyncLock) TableName() string {
	return "sync_locks"
}
