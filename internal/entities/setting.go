package entities

import (
	"time"
)

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Known setting keys
const (
	// Sync pipeline settings
	SettingKeySyncEnabled       = "sync_enabled"
	SettingKeySyncBackend       = "sync_backend"
	SettingKeySyncHost          = "sync_host"
	SettingKeySyncAPIToken      = "sync_api_token"
	SettingKeySyncSchedule      = "sync_schedule"
	SettingKeySyncFavoritesOnly = "sync_favorites_only"
	SettingKeySyncLastAt        = "sync_last_at"
	SettingKeySyncLastStatus    = "sync_last_status"
	SettingKeySyncLastMessage   = "sync_last_message"
	SettingKeySyncLastChangeAt  = "sync_last_change_at"

	// Device identity settings
	SettingKeyDeviceID   = "device_id"
	SettingKeyDeviceName = "device_name"
)
