// Package snapshot defines the wire-level representation of a device's
// library state and the builder that produces it from local storage.
//
// A snapshot deliberately contains no local numeric ids. Manga are
// identified by (source, url), chapters by url, categories by name,
// with category membership encoded through category sort orders.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode indicates a malformed or incompatible snapshot payload.
// A decode failure aborts the sync attempt; local state is untouched.
var ErrDecode = errors.New("malformed snapshot payload")

// Snapshot is the complete transmittable serialization of a library.
type Snapshot struct {
	Sync           Status   `json:"sync"`
	Backup         *Library `json:"backup,omitempty"`
	Device         Device   `json:"device"`
	UpdateRequired bool     `json:"update_required,omitempty"`
}

// Status describes who produced the snapshot and when. The timestamp
// travels in both ISO-8601 and epoch-millis form.
type Status struct {
	Message         string `json:"status"`
	LastSynced      string `json:"last_synced"`
	LastSyncedEpoch int64  `json:"last_synced_epoch"`
}

// NewStatus builds a Status stamped with the given time.
func NewStatus(message string, at time.Time) Status {
	return Status{
		Message:         message,
		LastSynced:      at.UTC().Format(time.RFC3339),
		LastSyncedEpoch: at.UnixMilli(),
	}
}

// Device identifies the device asking to sync. It describes the caller,
// not the data, and is never merged.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Library is the snapshot payload.
type Library struct {
	Manga      []Manga    `json:"manga"`
	Categories []Category `json:"categories,omitempty"`
	Sources    []Source   `json:"sources,omitempty"`
}

// Key is the cross-device identity of a library item.
type Key struct {
	Source int64
	URL    string
}

// Manga is one library item with everything it owns nested inside.
type Manga struct {
	Source       int64    `json:"source"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Artist       string   `json:"artist,omitempty"`
	Author       string   `json:"author,omitempty"`
	Description  string   `json:"description,omitempty"`
	Genre        []string `json:"genre,omitempty"`
	Status       int      `json:"status"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	DateAdded    int64    `json:"date_added"`
	ViewerFlags  int64    `json:"viewer_flags"`
	Favorite     bool     `json:"favorite"`

	LastModifiedAt *int64 `json:"last_modified_at,omitempty"`

	Chapters []Chapter `json:"chapters,omitempty"`
	// Categories holds the sort orders of the item's categories, the
	// only category identifier stable across devices.
	Categories []int64   `json:"categories,omitempty"`
	Tracking   []Track   `json:"tracking,omitempty"`
	History    []History `json:"history,omitempty"`
}

// Key returns the manga's cross-device identity.
func (m Manga) Key() Key {
	return Key{Source: m.Source, URL: m.URL}
}

// ModifiedAt returns the last-modified timestamp, with absence mapped
// to the minimum value so any timestamped counterpart wins a merge.
func (m Manga) ModifiedAt() int64 {
	if m.LastModifiedAt == nil {
		return -1 << 62
	}
	return *m.LastModifiedAt
}

type Chapter struct {
	URL           string  `json:"url"`
	Name          string  `json:"name"`
	Scanlator     *string `json:"scanlator,omitempty"`
	Read          bool    `json:"read"`
	Bookmark      bool    `json:"bookmark"`
	LastPageRead  int64   `json:"last_page_read"`
	ChapterNumber float64 `json:"chapter_number"`
	SourceOrder   int64   `json:"source_order"`
	DateFetch     int64   `json:"date_fetch"`
	DateUpload    int64   `json:"date_upload"`

	LastModifiedAt *int64 `json:"last_modified_at,omitempty"`
}

// ModifiedAt mirrors Manga.ModifiedAt for chapter-level comparisons.
func (c Chapter) ModifiedAt() int64 {
	if c.LastModifiedAt == nil {
		return -1 << 62
	}
	return *c.LastModifiedAt
}

type Category struct {
	Name  string `json:"name"`
	Order int64  `json:"order"`
	Flags int64  `json:"flags"`
}

type Track struct {
	SyncID          int64   `json:"sync_id"`
	RemoteID        int64   `json:"remote_id"`
	LibraryID       *int64  `json:"library_id,omitempty"`
	Title           string  `json:"title,omitempty"`
	LastChapterRead float64 `json:"last_chapter_read"`
	TotalChapters   int64   `json:"total_chapters"`
	Status          int     `json:"status"`
	Score           float64 `json:"score"`
	RemoteURL       string  `json:"remote_url,omitempty"`
	StartDate       int64   `json:"start_date"`
	FinishDate      int64   `json:"finish_date"`
}

type History struct {
	URL          string `json:"url"`
	LastRead     int64  `json:"last_read"`
	ReadDuration int64  `json:"read_duration"`
}

// Source is optional metadata describing a content source referenced
// by the library.
type Source struct {
	SourceID int64  `json:"source_id"`
	Name     string `json:"name"`
}

// Decode parses a snapshot document. Unknown fields are ignored and
// missing optional fields default to their zero values, so one odd
// entity does not sink an otherwise usable snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &s, nil
}

// Encode serializes the snapshot for transport.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}
