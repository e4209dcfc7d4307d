package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Repository is the only code that writes product_variants.stock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	TakeStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	ReturnStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a stock repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockVariant reads the row with FOR UPDATE.
func (r *repository) LockVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// TakeStock subtracts qty only while stock >= qty. A row that reaches zero
// while available is demoted to out_of_stock in the same statement.
func (r *repository) TakeStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumns(map[string]any{
			"stock": gorm.Expr("stock - ?", qty),
			"status": gorm.Expr(
				"CASE WHEN status = ? AND stock - ? = 0 THEN ? ELSE status END",
				enums.VariantStatusAvailable, qty, enums.VariantStatusOutOfStock,
			),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReturnStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
