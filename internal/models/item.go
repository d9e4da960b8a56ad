package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LocalItem is a row of the merchant's local inventory
type LocalItem struct {
	SKU           string          `gorm:"type:varchar(64);primaryKey" json:"sku"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	Category      string          `gorm:"type:varchar(255);index:idx_items_category" json:"category"`
	RetailPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"retailPrice"`
	StockQuantity int             `gorm:"not null;default:0" json:"stockQuantity"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for LocalItem
func (LocalItem) TableName() string {
	return "items"
}

// LocalImage is an image attached to a local item
type LocalImage struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SKU       string `gorm:"type:varchar(64);not null;index:idx_item_images_sku" json:"sku"`
	ImagePath string `gorm:"type:varchar(500);not null" json:"imagePath"`
	IsPrimary bool   `gorm:"default:false" json:"isPrimary"`
	SortOrder int    `gorm:"default:0" json:"sortOrder"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for LocalImage
func (LocalImage) TableName() string {
	return "item_images"
}
