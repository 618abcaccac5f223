// Package settingsstore persists sync configuration and bookkeeping.
// Priority: database > environment > default.
package settingsstore

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/crypto"
	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/entities"
	"github.com/okayu/mangasync/internal/snapshot"
)

type SettingsStore struct {
	db *database.Database

	encOnce sync.Once
	enc     *crypto.Encryptor
	encErr  error
}

func New(db *database.Database) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) get(key string) string {
	setting, err := s.db.GetSetting(key)
	if err == nil && setting.Value != "" {
		return setting.Value
	}
	return ""
}

// DefaultSyncSchedule runs a sync every six hours.
const DefaultSyncSchedule = "0 */6 * * *"

// SyncConfig is the persisted sync configuration.
type SyncConfig struct {
	Enabled  bool
	Backend  string // "dropbox", "s3" or "selfhosted"
	Host     string
	APIToken string
	Schedule string // cron format
}

func (s *SettingsStore) GetSyncConfig() SyncConfig {
	schedule := s.getWithEnv(entities.SettingKeySyncSchedule, "SYNC_SCHEDULE")
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}
	return SyncConfig{
		Enabled:  s.getWithEnv(entities.SettingKeySyncEnabled, "SYNC_ENABLED") == "true",
		Backend:  s.getWithEnv(entities.SettingKeySyncBackend, "SYNC_BACKEND"),
		Host:     s.getWithEnv(entities.SettingKeySyncHost, "SYNC_HOST"),
		APIToken: s.getSecret(entities.SettingKeySyncAPIToken, "SYNC_API_TOKEN"),
		Schedule: schedule,
	}
}

func (s *SettingsStore) getWithEnv(key, envVar string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return os.Getenv(envVar)
}

func (s *SettingsStore) SetSyncEnabled(enabled bool) error {
	return s.db.SetSetting(entities.SettingKeySyncEnabled, strconv.FormatBool(enabled))
}

func (s *SettingsStore) SetSyncBackend(backend string) error {
	return s.db.SetSetting(entities.SettingKeySyncBackend, backend)
}

func (s *SettingsStore) SetSyncHost(host string) error {
	return s.db.SetSetting(entities.SettingKeySyncHost, host)
}

func (s *SettingsStore) SetSyncSchedule(schedule string) error {
	return s.db.SetSetting(entities.SettingKeySyncSchedule, schedule)
}

// SyncFavoritesOnly reports whether snapshots should only carry
// favorited items. Defaults to true.
func (s *SettingsStore) SyncFavoritesOnly() bool {
	return s.getWithEnv(entities.SettingKeySyncFavoritesOnly, "SYNC_FAVORITES_ONLY") != "false"
}

// Device returns this device's identity, generating and persisting one
// on first use. The id is a small integer derived from a random UUID;
// the name defaults to the hostname.
func (s *SettingsStore) Device() snapshot.Device {
	id := s.deviceID()
	name := s.get(entities.SettingKeyDeviceName)
	if name == "" {
		name, _ = os.Hostname()
		if name == "" {
			name = "mangasync"
		}
		if err := s.db.SetSetting(entities.SettingKeyDeviceName, name); err != nil {
			log.Printf("settings: failed to persist device name: %v", err)
		}
	}
	return snapshot.Device{ID: id, Name: name}
}

func (s *SettingsStore) deviceID() int {
	if v := s.get(entities.SettingKeyDeviceID); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			return id
		}
	}

	// Fold a fresh UUID down to a small positive integer.
	u := uuid.New()
	id := int(uint32(u.ID()) % 100000)
	if id == 0 {
		id = 1
	}
	if err := s.db.SetSetting(entities.SettingKeyDeviceID, strconv.Itoa(id)); err != nil {
		log.Printf("settings: failed to persist device id: %v", err)
	}
	return id
}

func (s *SettingsStore) SetDeviceName(name string) error {
	return s.db.SetSetting(entities.SettingKeyDeviceName, name)
}

// RecordSyncResult stores the outcome of a sync attempt.
func (s *SettingsStore) RecordSyncResult(status, message string, at time.Time) error {
	if err := s.db.SetSetting(entities.SettingKeySyncLastStatus, status); err != nil {
		return err
	}
	if err := s.db.SetSetting(entities.SettingKeySyncLastMessage, message); err != nil {
		return err
	}
	if status != "success" {
		return nil
	}
	return s.db.SetSetting(entities.SettingKeySyncLastAt, at.UTC().Format(time.RFC3339))
}

// GetSyncLastAt returns the completion time of the last successful
// sync, or nil when none is recorded.
func (s *SettingsStore) GetSyncLastAt() *time.Time {
	v := s.get(entities.SettingKeySyncLastAt)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// MarkLocalChange records that the library was mutated locally, used to
// decide whether a scheduled sync has anything to push.
func (s *SettingsStore) MarkLocalChange(at time.Time) error {
	return s.db.SetSetting(entities.SettingKeySyncLastChangeAt, at.UTC().Format(time.RFC3339))
}

func (s *SettingsStore) GetLastChangeAt() *time.Time {
	v := s.get(entities.SettingKeySyncLastChangeAt)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// ClearSyncHistory removes sync bookkeeping, forcing the next cycle to
// behave like a first sync.
func (s *SettingsStore) ClearSyncHistory() error {
	for _, key := range []string{
		entities.SettingKeySyncLastAt,
		entities.SettingKeySyncLastStatus,
		entities.SettingKeySyncLastMessage,
	} {
		if err := s.db.DeleteSetting(key); err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
	}
	return nil
}
