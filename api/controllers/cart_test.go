package controllers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartsvc "github.com/angelmondragon/threadline-backend/internal/cart"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

func TestCartFetch(t *testing.T) {
	userID := uuid.New()
	cartID := uuid.New()
	variant := &models.ProductVariant{ID: uuid.New(), SKU: "TEE-M", Price: decimal.RequireFromString("20")}
	svc := &stubCart{view: &cartsvc.View{
		UserID:   userID,
		CartID:   &cartID,
		Holds:    []models.CartHold{{VariantID: variant.ID, Quantity: 3, Variant: variant}},
		Subtotal: decimal.RequireFromString("60"),
	}}

	rec := serve(t, http.MethodGet, "/api/v1/cart", "/api/v1/cart", "", CartFetch(svc, nil), userID, enums.ActorRoleCustomer)
	require.Equal(t, http.StatusOK, rec.Code)

	var body cartResponse
	decodeData(t, rec, &body)
	assert.Equal(t, "60.00", body.Subtotal)
	require.Len(t, body.Holds, 1)
	assert.Equal(t, "20.00", body.Holds[0].UnitPrice)
	assert.Equal(t, 3, body.Holds[0].Quantity)
}

func TestCartAddHold(t *testing.T) {
	variantID := uuid.New()
	svc := &stubCart{hold: &models.CartHold{VariantID: variantID, Quantity: 2}}
	body := `{"variant_id":"` + variantID.String() + `","quantity":2}`

	rec := serve(t, http.MethodPost, "/api/v1/cart/holds", "/api/v1/cart/holds", body, CartAddHold(svc, nil), uuid.New(), enums.ActorRoleCustomer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.addedQty)
}

func TestCartAddHoldValidatesQuantity(t *testing.T) {
	svc := &stubCart{}
	body := `{"variant_id":"` + uuid.NewString() + `","quantity":0}`

	rec := serve(t, http.MethodPost, "/api/v1/cart/holds", "/api/v1/cart/holds", body, CartAddHold(svc, nil), uuid.New(), enums.ActorRoleCustomer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.addedQty)
}

func TestCartAddHoldInsufficientStock(t *testing.T) {
	variantID := uuid.New()
	svc := &stubCart{err: pkgerrors.InsufficientStock(variantID.String(), 5, 1)}
	body := `{"variant_id":"` + variantID.String() + `","quantity":5}`

	rec := serve(t, http.MethodPost, "/api/v1/cart/holds", "/api/v1/cart/holds", body, CartAddHold(svc, nil), uuid.New(), enums.ActorRoleCustomer)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), decodeErrorCode(t, rec))
}

func TestCartReleaseUnitHoldNotFound(t *testing.T) {
	variantID := uuid.New()
	svc := &stubCart{err: pkgerrors.HoldNotFound(variantID.String())}

	rec := serve(t, http.MethodDelete, "/api/v1/cart/holds/{variantId}", "/api/v1/cart/holds/"+variantID.String(), "",
		CartReleaseUnit(svc, nil), uuid.New(), enums.ActorRoleCustomer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeHoldNotFound), decodeErrorCode(t, rec))
}

func TestCartClear(t *testing.T) {
	svc := &stubCart{}
	rec := serve(t, http.MethodDelete, "/api/v1/cart", "/api/v1/cart", "", CartClear(svc, nil), uuid.New(), enums.ActorRoleCustomer)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, svc.cleared)
}
