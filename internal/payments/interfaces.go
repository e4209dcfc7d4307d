package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/square"
)

// Repository persists payment intents and records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRecordByReference(ctx context.Context, reference string) (*models.PaymentRecord, error)
	CreateRecord(ctx context.Context, record *models.PaymentRecord) error
	FindIntentByReference(ctx context.Context, reference string) (*models.PaymentIntent, error)
	FindIntentByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
}

// Gateway issues hosted checkout links. Implemented by pkg/square.Client.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.CheckoutLink, error)
}

// Locker serializes work on a key across processes.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// OrderLifecycle is the slice of the order service payments drive.
type OrderLifecycle interface {
	Get(ctx context.Context, orderID uuid.UUID) (*orders.Detail, error)
	CurrentStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
