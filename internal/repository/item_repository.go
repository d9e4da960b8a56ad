package repository

import (
	"context"

	"catalog-sync-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository handles database operations for local items and their images
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Count returns the number of local items
func (r *ItemRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.LocalItem{}).Count(&total).Error
	return total, err
}

// ListPage returns one page of items ordered by sku
func (r *ItemRepository) ListPage(ctx context.Context, offset, limit int) ([]models.LocalItem, error) {
	var items []models.LocalItem
	err := r.db.WithContext(ctx).
		Order("sku ASC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	return items, err
}

// GetBySKU retrieves a single item
func (r *ItemRepository) GetBySKU(ctx context.Context, sku string) (*models.LocalItem, error) {
	var item models.LocalItem
	if err := r.db.WithContext(ctx).First(&item, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// DistinctCategories returns every non-empty category name in use
func (r *ItemRepository) DistinctCategories(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&models.LocalItem{}).
		Where("category IS NOT NULL AND category <> ''").
		Distinct().
		Order("category ASC").
		Pluck("category", &names).Error
	return names, err
}

// ImagesBySKU returns the images of an item, primary first
func (r *ItemRepository) ImagesBySKU(ctx context.Context, sku string) ([]models.LocalImage, error) {
	var images []models.LocalImage
	err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Order("is_primary DESC, sort_order ASC, id ASC").
		Find(&images).Error
	return images, err
}

// UpsertImported inserts an imported item or refreshes name, description and
// price of an existing one. Category and stock of existing rows are untouched.
func (r *ItemRepository) UpsertImported(ctx context.Context, item *models.LocalItem) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "retail_price", "updated_at"}),
	}).Create(item).Error
}

// Create inserts a new local item
func (r *ItemRepository) Create(ctx context.Context, item *models.LocalItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// AddImage attaches an image row to an item
func (r *ItemRepository) AddImage(ctx context.Context, image *models.LocalImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}
