package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// ProductVariant is one size/brand combination of a product and owns the
// single stock counter for it.
type ProductVariant struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	SKU       string              `gorm:"column:sku;not null;uniqueIndex"`
	Brand     string              `gorm:"column:brand;not null"`
	Size      string              `gorm:"column:size;not null"`
	Price     decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Stock     int                 `gorm:"column:stock;not null;default:0"`
	Status    enums.VariantStatus `gorm:"column:status;type:varchar(32);not null;default:'out_of_stock'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
