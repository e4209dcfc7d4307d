package enums

// PaymentMethod describes how a customer settles an order.
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodGateway PaymentMethod = "gateway"
)

var paymentMethods = newClosedSet("payment method", PaymentMethodCash, PaymentMethodGateway)

func (p PaymentMethod) String() string { return string(p) }
func (p PaymentMethod) IsValid() bool  { return paymentMethods.contains(p) }

// InitialOrderStatus is the first status an order placed with this method
// receives: cash orders are reserved on the spot, gateway orders wait for payment.
func (p PaymentMethod) InitialOrderStatus() OrderStatus {
	if p == PaymentMethodCash {
		return OrderStatusReserved
	}
	return OrderStatusPending
}

func ParsePaymentMethod(value string) (PaymentMethod, error) { return paymentMethods.parse(value) }
