package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// OrderLine is the per-line snapshot carried by order.created.
type OrderLine struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

// OrderCreatedEvent is emitted when checkout turns a cart into an order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Status        enums.OrderStatus   `json:"status"`
	Total         string              `json:"total"`
	Lines         []OrderLine         `json:"lines"`
}

// OrderStatusChangedEvent is emitted for every appended status event after the first.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ActorRole enums.ActorRole   `json:"actor_role"`
	Note      string            `json:"note,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}

// PaymentConfirmedEvent reports the first recorded outcome for a payment.
type PaymentConfirmedEvent struct {
	OrderID          uuid.UUID            `json:"order_id"`
	PaymentRecordID  uuid.UUID            `json:"payment_record_id"`
	Method           enums.PaymentMethod  `json:"method"`
	Outcome          enums.PaymentOutcome `json:"outcome"`
	GatewayReference string               `json:"gateway_reference,omitempty"`
	FailureReason    string               `json:"failure_reason,omitempty"`
	ConfirmedAt      time.Time            `json:"confirmed_at"`
}

// VariantStatusChangedEvent is emitted when a variant's display status changes.
type VariantStatusChangedEvent struct {
	VariantID uuid.UUID           `json:"variant_id"`
	ProductID uuid.UUID           `json:"product_id"`
	From      enums.VariantStatus `json:"from"`
	To        enums.VariantStatus `json:"to"`
	Stock     int                 `json:"stock"`
}
