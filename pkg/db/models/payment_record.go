package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// PaymentRecord is the durable outcome of a payment confirmation. A gateway
// reference appears on at most one record.
type PaymentRecord struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Method           enums.PaymentMethod  `gorm:"column:method;type:varchar(16);not null"`
	Outcome          enums.PaymentOutcome `gorm:"column:outcome;type:varchar(16);not null"`
	FailureReason    *string              `gorm:"column:failure_reason"`
	GatewayReference *string              `gorm:"column:gateway_reference;uniqueIndex"`
	ConfirmedAt      time.Time            `gorm:"column:confirmed_at;not null"`
}

func (p *PaymentRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
