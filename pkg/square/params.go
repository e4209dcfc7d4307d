package square

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
)

const defaultCurrency = "USD"

// PaymentLinkParams describes a hosted checkout for one order total.
// LocationID and Currency fall back to the client's configuration.
type PaymentLinkParams struct {
	OrderReference string
	Amount         decimal.Decimal
	Currency       string
	LocationID     string
	RedirectURL    string
	IdempotencyKey string
}

func (p PaymentLinkParams) validate() error {
	var errs []error
	if strings.TrimSpace(p.OrderReference) == "" {
		errs = append(errs, errors.New("order reference is required"))
	}
	if strings.TrimSpace(p.LocationID) == "" {
		errs = append(errs, errors.New("location id is required"))
	}
	if minorUnits(p.Amount) <= 0 {
		errs = append(errs, errors.New("amount must be positive"))
	}
	return errors.Join(errs...)
}

func (p PaymentLinkParams) toSquareRequest() *sqcheckout.CreatePaymentLinkRequest {
	currency := sq.Currency(p.currencyCode())
	cents := minorUnits(p.Amount)
	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: optional(p.IdempotencyKey),
		QuickPay: &sq.QuickPay{
			Name:       "Order " + p.OrderReference,
			LocationID: p.LocationID,
			PriceMoney: &sq.Money{
				Amount:   &cents,
				Currency: &currency,
			},
		},
		PaymentNote: optional(p.OrderReference),
	}
	if redirect := optional(p.RedirectURL); redirect != nil {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: redirect}
	}
	return req
}

func (p PaymentLinkParams) currencyCode() string {
	if code := strings.ToUpper(strings.TrimSpace(p.Currency)); code != "" {
		return code
	}
	return defaultCurrency
}

// minorUnits converts a two-decimal amount into cents, rounding half away
// from zero.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
