// Package categories provides database operations for user categories.
package categories

import (
	"errors"

	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/entities"
)

// Repository handles category database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new category repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List returns all categories ordered by sort order.
func (r *Repository) List() ([]entities.Category, error) {
	var cats []entities.Category
	err := r.db.Order("sort_order ASC, name ASC").Find(&cats).Error
	return cats, err
}

// GetByName returns the category with the given name, or (nil, nil)
// when none exists. Names are the cross-device category identity.
func (r *Repository) GetByName(name string) (*entities.Category, error) {
	var cat entities.Category
	err := r.db.Where("name = ?", name).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// Create inserts a new category.
func (r *Repository) Create(cat *entities.Category) error {
	return r.db.Create(cat).Error
}

// Save persists changes to an existing category.
func (r *Repository) Save(cat *entities.Category) error {
	return r.db.Save(cat).Error
}
