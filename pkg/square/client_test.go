package square

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

type fakeLinks struct {
	got  *sqcheckout.CreatePaymentLinkRequest
	resp *sq.CreatePaymentLinkResponse
	err  error
}

func (f *fakeLinks) Create(_ context.Context, req *sqcheckout.CreatePaymentLinkRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error) {
	f.got = req
	return f.resp, f.err
}

func str(s string) *string { return &s }

func testClient(links linkAPI) *Client {
	return newClient(links, "sandbox", "LOC-DEFAULT", "usd", logger.Nop())
}

func TestCreatePaymentLinkFillsDefaults(t *testing.T) {
	links := &fakeLinks{resp: &sq.CreatePaymentLinkResponse{PaymentLink: &sq.PaymentLink{
		ID:      str("link-1"),
		OrderID: str("sq-order-1"),
		URL:     str("https://square.link/u/abc"),
	}}}
	c := testClient(links)

	out, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{
		OrderReference: "order-1",
		Amount:         decimal.RequireFromString("59.90"),
	})
	require.NoError(t, err)
	assert.Equal(t, &CheckoutLink{LinkID: "link-1", Reference: "sq-order-1", URL: "https://square.link/u/abc"}, out)

	require.NotNil(t, links.got)
	assert.Equal(t, "LOC-DEFAULT", links.got.QuickPay.LocationID)
	require.NotNil(t, links.got.IdempotencyKey)
	assert.Contains(t, *links.got.IdempotencyKey, "payment-link-")
	require.NotNil(t, links.got.QuickPay.PriceMoney.Currency)
	assert.Equal(t, sq.Currency("USD"), *links.got.QuickPay.PriceMoney.Currency)
}

func TestCreatePaymentLinkRejectsBadInput(t *testing.T) {
	links := &fakeLinks{}
	c := testClient(links)

	_, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{OrderReference: "o", Amount: decimal.Zero})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Nil(t, links.got, "square must not be called")
}

func TestCreatePaymentLinkIncompleteResponse(t *testing.T) {
	for name, resp := range map[string]*sq.CreatePaymentLinkResponse{
		"nil response": nil,
		"no link":      {},
		"no url":       {PaymentLink: &sq.PaymentLink{OrderID: str("sq-1")}},
	} {
		t.Run(name, func(t *testing.T) {
			c := testClient(&fakeLinks{resp: resp})
			_, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{OrderReference: "o", Amount: decimal.NewFromInt(5)})
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
		})
	}
}

func TestCreatePaymentLinkMapsSquareErrors(t *testing.T) {
	apiErr := sqcore.NewAPIError(http.StatusConflict, errors.New(`{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`))
	c := testClient(&fakeLinks{err: apiErr})

	_, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{
		OrderReference: "o",
		Amount:         decimal.NewFromInt(5),
		IdempotencyKey: "order-o",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeIdempotency))
	assert.ErrorIs(t, err, apiErr)
}

func TestCodeForStatus(t *testing.T) {
	cases := map[int]pkgerrors.Code{
		http.StatusBadRequest:          pkgerrors.CodeValidation,
		http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
		http.StatusForbidden:           pkgerrors.CodeForbidden,
		http.StatusNotFound:            pkgerrors.CodeNotFound,
		http.StatusConflict:            pkgerrors.CodeConflict,
		http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusTeapot:              pkgerrors.CodeValidation,
		http.StatusBadGateway:          pkgerrors.CodeDependency,
	}
	for status, want := range cases {
		assert.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}

func TestMapError(t *testing.T) {
	t.Run("auth category", func(t *testing.T) {
		err := mapError(sqcore.NewAPIError(http.StatusBadRequest,
			errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)), "op")
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
	})
	t.Run("unparseable body keeps status code", func(t *testing.T) {
		err := mapError(sqcore.NewAPIError(http.StatusNotFound, errors.New("not json")), "op")
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
	t.Run("transport error", func(t *testing.T) {
		err := mapError(errors.New("dial tcp: refused"), "op")
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	})
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, mapError(nil, "op"))
	})
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"19.99":  1999,
		"40":     4000,
		"0.005":  1,
		"12.344": 1234,
	}
	for raw, want := range cases {
		assert.Equal(t, want, minorUnits(decimal.RequireFromString(raw)), raw)
	}
}

func TestToSquareRequest(t *testing.T) {
	req := PaymentLinkParams{
		OrderReference: "order-1",
		Amount:         decimal.RequireFromString("59.90"),
		Currency:       " eur ",
		LocationID:     "LOC1",
		RedirectURL:    "https://shop.example/return",
		IdempotencyKey: "key-1",
	}.toSquareRequest()

	require.NotNil(t, req.IdempotencyKey)
	assert.Equal(t, "key-1", *req.IdempotencyKey)
	assert.Equal(t, "Order order-1", req.QuickPay.Name)
	require.NotNil(t, req.QuickPay.PriceMoney.Amount)
	assert.EqualValues(t, 5990, *req.QuickPay.PriceMoney.Amount)
	assert.Equal(t, sq.Currency("EUR"), *req.QuickPay.PriceMoney.Currency)
	require.NotNil(t, req.CheckoutOptions)
	assert.Equal(t, "https://shop.example/return", *req.CheckoutOptions.RedirectURL)

	bare := PaymentLinkParams{OrderReference: "o", Amount: decimal.NewFromInt(1), LocationID: "L"}.toSquareRequest()
	assert.Nil(t, bare.CheckoutOptions)
	assert.Nil(t, bare.IdempotencyKey)
}

func TestParamsValidateCollectsProblems(t *testing.T) {
	err := PaymentLinkParams{}.validate()
	require.Error(t, err)
	for _, want := range []string{"order reference", "location id", "amount"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NoError(t, PaymentLinkParams{OrderReference: "o", Amount: decimal.NewFromInt(1), LocationID: "L"}.validate())
}
