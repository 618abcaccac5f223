// Package library provides read access to the local manga library for
// snapshot building. All mutation during sync happens inside the apply
// transaction, not here.
package library

import (
	"errors"

	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/entities"
)

// Repository handles library read operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new library repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ChapterHistory is a history entry resolved to its chapter URL, the
// only chapter identifier that is stable across devices.
type ChapterHistory struct {
	URL          string `json:"url"`
	LastRead     int64  `json:"last_read"`
	ReadDuration int64  `json:"read_duration"`
}

// ListLibrary returns library items with chapters and tracks preloaded,
// ordered by id for stable output. When favoritesOnly is set, items
// whose favorite flag is cleared are skipped.
func (r *Repository) ListLibrary(favoritesOnly bool) ([]entities.Manga, error) {
	q := r.db.Preload("Chapters", func(db *gorm.DB) *gorm.DB {
		return db.Order("source_order ASC, url ASC")
	}).Preload("Tracks")

	if favoritesOnly {
		q = q.Where("favorite = ?", true)
	}

	var manga []entities.Manga
	if err := q.Order("id ASC").Find(&manga).Error; err != nil {
		return nil, err
	}
	return manga, nil
}

// GetByKey looks up a manga by its cross-device identity. Returns
// (nil, nil) when no row matches.
func (r *Repository) GetByKey(source int64, url string) (*entities.Manga, error) {
	var m entities.Manga
	err := r.db.Where("source = ? AND url = ?", source, url).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CategoryOrdersFor returns the sort orders of the categories the manga
// belongs to. Orders, not ids: ids are reassigned per device.
func (r *Repository) CategoryOrdersFor(mangaID uint) ([]int64, error) {
	var orders []int64
	err := r.db.Model(&entities.MangaCategory{}).
		Joins("JOIN categories ON categories.id = manga_categories.category_id").
		Where("manga_categories.manga_id = ?", mangaID).
		Order("categories.sort_order ASC").
		Pluck("categories.sort_order", &orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// HistoryFor returns the manga's history entries keyed by chapter URL.
func (r *Repository) HistoryFor(mangaID uint) ([]ChapterHistory, error) {
	var out []ChapterHistory
	err := r.db.Model(&entities.History{}).
		Select("chapters.url AS url, history.last_read AS last_read, history.read_duration AS read_duration").
		Joins("JOIN chapters ON chapters.id = history.chapter_id").
		Where("chapters.manga_id = ?", mangaID).
		Order("chapters.url ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
