package enums

// PaymentOutcome is the result recorded on a payment_records row.
type PaymentOutcome string

const (
	PaymentOutcomeApproved PaymentOutcome = "approved"
	PaymentOutcomeRejected PaymentOutcome = "rejected"
)

var paymentOutcomes = newClosedSet("payment outcome", PaymentOutcomeApproved, PaymentOutcomeRejected)

func (p PaymentOutcome) String() string { return string(p) }
func (p PaymentOutcome) IsValid() bool  { return paymentOutcomes.contains(p) }

func ParsePaymentOutcome(value string) (PaymentOutcome, error) { return paymentOutcomes.parse(value) }
