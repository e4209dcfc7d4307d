package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their status log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	LatestEvent(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusEvent, error)
	AppendEvent(ctx context.Context, event *models.OrderStatusEvent) error
	ListStale(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]uuid.UUID, error)
	CreatePaymentRecord(ctx context.Context, record *models.PaymentRecord) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CartConsumer hands the held cart over to checkout.
type CartConsumer interface {
	LoadForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Cart, error)
	ConsumeForCheckout(ctx context.Context, tx *gorm.DB, cart *models.Cart) error
}

// StockLedger is the slice of the inventory ledger orders need.
type StockLedger interface {
	LockVariants(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.ProductVariant, error)
	Increment(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (inventory.Movement, error)
}

// StatusSettler re-derives variant statuses after ledger moves.
type StatusSettler interface {
	Settle(ctx context.Context, tx *gorm.DB, moves ...inventory.Movement) error
}
