package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Repository persists carts and their holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	LockActiveCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	DeactivateCart(ctx context.Context, cartID uuid.UUID) error
	FindHold(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartHold, error)
	ListHolds(ctx context.Context, cartID uuid.UUID) ([]models.CartHold, error)
	CreateHold(ctx context.Context, hold *models.CartHold) error
	UpdateHoldQuantity(ctx context.Context, holdID uuid.UUID, qty int) error
	DeleteHold(ctx context.Context, holdID uuid.UUID) error
	DeleteHolds(ctx context.Context, cartID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Holds", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Holds.Variant").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) LockActiveCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) CreateCart(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *repository) DeactivateCart(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumns(map[string]any{
			"status":     enums.CartStatusInactive,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) FindHold(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartHold, error) {
	var hold models.CartHold
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND variant_id = ?", cartID, variantID).
		First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) ListHolds(ctx context.Context, cartID uuid.UUID) ([]models.CartHold, error) {
	var holds []models.CartHold
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Find(&holds).Error
	return holds, err
}

func (r *repository) CreateHold(ctx context.Context, hold *models.CartHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) UpdateHoldQuantity(ctx context.Context, holdID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartHold{}).
		Where("id = ?", holdID).
		UpdateColumns(map[string]any{
			"quantity":   qty,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) DeleteHold(ctx context.Context, holdID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", holdID).Delete(&models.CartHold{}).Error
}

func (r *repository) DeleteHolds(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartHold{}).Error
}
