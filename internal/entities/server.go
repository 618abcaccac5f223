package entities

import (
	"time"
)

// SnapshotRecord is the server-side copy of one account's library
// snapshot, stored as the raw JSON payload. The server never unpacks
// it into relational rows; it only merges documents.
type SnapshotRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TokenID     uint      `gorm:"uniqueIndex" json:"token_id"`
	Payload     []byte    `gorm:"type:blob" json:"-"`
	SyncedEpoch int64     `json:"synced_epoch"` // last_synced_epoch of the stored snapshot
	UpdatedAt   time.Time `json:"updated_at"`
}

func (SnapshotRecord) TableName() string {
	return "snapshot_records"
}

// APIToken authenticates a device against the self-hosted sync server.
// Only the bcrypt hash is stored; the plaintext token is shown once at
// creation time.
type APIToken struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Label      string     `gorm:"size:256" json:"label"`
	TokenHash  string     `gorm:"size:128" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (APIToken) TableName() string {
	return "api_tokens"
}
