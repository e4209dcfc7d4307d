package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/api/middleware"
	cartsvc "github.com/angelmondragon/threadline-backend/internal/cart"
	internalorders "github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
)

type stubOrders struct {
	detail     *internalorders.Detail
	list       []internalorders.Detail
	nextCursor string
	page       pagination.Params
	transition *internalorders.TransitionResult
	staleIDs   []uuid.UUID
	err        error

	checkoutMethod enums.PaymentMethod
	lastInput      internalorders.TransitionInput
	cancelReason   string
	staleStatus    enums.OrderStatus
	staleAge       time.Duration
	staleLimit     int
}

func (s *stubOrders) Checkout(_ context.Context, _ uuid.UUID, method enums.PaymentMethod) (*internalorders.Detail, error) {
	s.checkoutMethod = method
	return s.detail, s.err
}

func (s *stubOrders) Cancel(_ context.Context, orderID uuid.UUID, reason string, actor internalorders.Actor) (*internalorders.TransitionResult, error) {
	s.cancelReason = reason
	s.lastInput = internalorders.TransitionInput{OrderID: orderID, Target: enums.OrderStatusCancelled, Actor: actor, Note: reason}
	return s.transition, s.err
}

func (s *stubOrders) AdvanceStatus(_ context.Context, input internalorders.TransitionInput) (*internalorders.TransitionResult, error) {
	s.lastInput = input
	return s.transition, s.err
}

func (s *stubOrders) TransitionTx(context.Context, *gorm.DB, internalorders.TransitionInput) (*internalorders.TransitionResult, error) {
	return s.transition, s.err
}

func (s *stubOrders) CurrentStatus(context.Context, *gorm.DB, uuid.UUID) (enums.OrderStatus, error) {
	if s.detail == nil {
		return "", s.err
	}
	return s.detail.Status, s.err
}

func (s *stubOrders) Get(context.Context, uuid.UUID) (*internalorders.Detail, error) {
	return s.detail, s.err
}

func (s *stubOrders) ListForUser(_ context.Context, _ uuid.UUID, page pagination.Params) (*internalorders.Page, error) {
	s.page = page
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.Page{Orders: s.list, NextCursor: s.nextCursor}, nil
}

func (s *stubOrders) ListStale(_ context.Context, status enums.OrderStatus, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	s.staleStatus = status
	s.staleAge = olderThan
	s.staleLimit = limit
	return s.staleIDs, s.err
}

type stubCart struct {
	view     *cartsvc.View
	hold     *models.CartHold
	err      error
	addedQty int
	cleared  bool
}

func (s *stubCart) AddOrIncrease(_ context.Context, _, _ uuid.UUID, qty int) (*models.CartHold, error) {
	s.addedQty = qty
	return s.hold, s.err
}

func (s *stubCart) DecreaseOrRemove(context.Context, uuid.UUID, uuid.UUID) (*models.CartHold, error) {
	return s.hold, s.err
}

func (s *stubCart) Clear(context.Context, uuid.UUID) error {
	s.cleared = true
	return s.err
}

func (s *stubCart) Get(context.Context, uuid.UUID) (*cartsvc.View, error) {
	return s.view, s.err
}

func (s *stubCart) LoadForCheckout(context.Context, *gorm.DB, uuid.UUID) (*models.Cart, error) {
	return nil, s.err
}

func (s *stubCart) ConsumeForCheckout(context.Context, *gorm.DB, *models.Cart) error {
	return s.err
}

func sampleDetail(userID uuid.UUID, status enums.OrderStatus) *internalorders.Detail {
	orderID := uuid.New()
	return &internalorders.Detail{
		Order: models.Order{
			ID:            orderID,
			UserID:        userID,
			PaymentMethod: enums.PaymentMethodGateway,
			Total:         decimal.RequireFromString("59.90"),
			Lines: []models.OrderLine{{
				OrderID:             orderID,
				VariantID:           uuid.New(),
				Quantity:            2,
				UnitPriceAtPurchase: decimal.RequireFromString("29.95"),
			}},
			Events: []models.OrderStatusEvent{{OrderID: orderID, Status: status, ActorRole: enums.ActorRoleCustomer}},
		},
		Status: status,
	}
}

// serve routes one request through a chi router so path parameters resolve.
func serve(t *testing.T, method, pattern, target string, body string, h http.HandlerFunc, userID uuid.UUID, role enums.ActorRole) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), userID, role))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}
