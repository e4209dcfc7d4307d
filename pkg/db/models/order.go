package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Order is the immutable header created at checkout. Its status lives in
// OrderStatusEvent rows.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:varchar(16);not null"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Lines         []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Events        []OrderStatusEvent  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLine snapshots quantity and unit price at purchase.
type OrderLine struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID           uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;index"`
	Quantity            int             `gorm:"column:quantity;not null"`
	UnitPriceAtPurchase decimal.Decimal `gorm:"column:unit_price_at_purchase;type:numeric(12,2);not null"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// Subtotal is quantity times the snapshot unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderStatusEvent is one append-only entry in an order's status history.
// The row with the highest ID is the current status.
type OrderStatusEvent struct {
	ID        int64             `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:varchar(16);not null"`
	Note      *string           `gorm:"column:note"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;type:varchar(32);not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
