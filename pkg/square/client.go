package square

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/threadline-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// linkAPI is the slice of the SDK the checkout flow calls.
type linkAPI interface {
	Create(ctx context.Context, req *sqcheckout.CreatePaymentLinkRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error)
}

// Client issues hosted checkout links for orders.
type Client struct {
	links      linkAPI
	env        string
	locationID string
	currency   string
	logg       *logger.Logger
}

// CheckoutLink is the hosted payment page issued for an order.
// Reference is the Square order id echoed back on the redirect.
type CheckoutLink struct {
	LinkID    string
	Reference string
	URL       string
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("unknown square environment %q", env)
	}
	if !cfg.Enabled() {
		return nil, errors.New("square access token and location id are required")
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(strings.TrimSpace(cfg.AccessToken)),
	)
	c := newClient(sdk.Checkout.PaymentLinks, env, strings.TrimSpace(cfg.LocationID), cfg.Currency, logg)

	logg.Info(logg.WithFields(ctx, map[string]any{
		"square_env":  env,
		"location_id": c.locationID,
	}), "square client initialized")
	return c, nil
}

func newClient(links linkAPI, env, locationID, currency string, logg *logger.Logger) *Client {
	return &Client{links: links, env: env, locationID: locationID, currency: currency, logg: logg}
}

// CreatePaymentLink asks Square for a quick-pay checkout page covering the
// order total. Without a caller key a random one is generated, which makes
// the call non-repeatable.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*CheckoutLink, error) {
	if params.LocationID == "" {
		params.LocationID = c.locationID
	}
	if params.Currency == "" {
		params.Currency = c.currency
	}
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = "payment-link-" + uuid.NewString()
	}
	if err := params.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment link request")
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":       "create_payment_link",
		"order_reference": params.OrderReference,
		"location_id":     params.LocationID,
	})
	start := time.Now()
	resp, err := c.links.Create(ctx, params.toSquareRequest())
	took := time.Since(start)
	if err != nil {
		mapped := mapError(err, "create payment link")
		c.logg.Error(c.logg.WithField(ctx, "took_ms", took.Milliseconds()), "square call failed", mapped)
		return nil, mapped
	}

	out, err := checkoutLinkFrom(resp)
	if err != nil {
		c.logg.Error(ctx, "square returned an unusable payment link", err)
		return nil, err
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_link_id": out.LinkID,
		"reference":       out.Reference,
		"took_ms":         took.Milliseconds(),
	}), "square payment link created")
	return out, nil
}

func checkoutLinkFrom(resp *sq.CreatePaymentLinkResponse) (*CheckoutLink, error) {
	var link *sq.PaymentLink
	if resp != nil {
		link = resp.GetPaymentLink()
	}
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment link")
	}
	out := &CheckoutLink{
		LinkID:    deref(link.GetID()),
		Reference: deref(link.GetOrderID()),
		URL:       deref(link.GetURL()),
	}
	if out.Reference == "" || out.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment link missing order id or url")
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
