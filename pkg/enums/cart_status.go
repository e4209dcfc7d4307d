package enums

// CartStatus marks whether a cart is the user's live cart. A user has at
// most one active cart; checkout flips it to inactive.
type CartStatus string

const (
	CartStatusActive   CartStatus = "active"
	CartStatusInactive CartStatus = "inactive"
)

var cartStatuses = newClosedSet("cart status", CartStatusActive, CartStatusInactive)

func (c CartStatus) String() string { return string(c) }
func (c CartStatus) IsValid() bool  { return cartStatuses.contains(c) }

func ParseCartStatus(value string) (CartStatus, error) { return cartStatuses.parse(value) }
