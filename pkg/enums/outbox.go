package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateProductVariant OutboxAggregateType = "product_variant"
)

var aggregateTypes = newClosedSet("aggregate type", AggregateOrder, AggregateProductVariant)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.contains(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names a domain event written to outbox_events. Values are
// dotted <aggregate>.<verb> and double as the broker routing attribute.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order.created"
	EventOrderStatusChanged   OutboxEventType = "order.status_changed"
	EventPaymentConfirmed     OutboxEventType = "payment.confirmed"
	EventVariantStatusChanged OutboxEventType = "variant.status_changed"
)

var eventTypes = newClosedSet("event type",
	EventOrderCreated, EventOrderStatusChanged, EventPaymentConfirmed, EventVariantStatusChanged)

func (e OutboxEventType) IsValid() bool { return eventTypes.contains(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) { return eventTypes.parse(value) }
