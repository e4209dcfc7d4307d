package enums

// OrderStatus is the value carried by each order_status_events row.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReserved  OrderStatus = "reserved"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusPrepared  OrderStatus = "prepared"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = newClosedSet("order status",
	OrderStatusPending,
	OrderStatusReserved,
	OrderStatusPaid,
	OrderStatusPrepared,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
)

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return orderStatuses.contains(s) }

// IsTerminal reports whether no further status may follow.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func ParseOrderStatus(value string) (OrderStatus, error) { return orderStatuses.parse(value) }

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus { return orderStatuses.all() }
