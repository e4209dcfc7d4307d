package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	internalorders "github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

// PaymentInitiator issues gateway checkout links.
type PaymentInitiator interface {
	Initiate(ctx context.Context, orderID uuid.UUID, returnURL string) (*models.PaymentIntent, error)
}

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,payment_method"`
}

// Checkout converts the caller's cart into an order.
func Checkout(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}
		detail, err := svc.Checkout(r.Context(), userID, method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(*detail))
	}
}

func ListMyOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderPageResponse(page))
	}
}

func GetMyOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := ownedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(*detail))
	}
}

type paymentLinkRequest struct {
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// CreatePaymentLink asks the gateway for a checkout link for one of the
// caller's pending gateway orders. defaultReturnURL is used when the body
// names none.
func CreatePaymentLink(orders internalorders.Service, svc PaymentInitiator, defaultReturnURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := ownedOrder(r, orders)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload paymentLinkRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		returnURL := strings.TrimSpace(payload.ReturnURL)
		if returnURL == "" {
			returnURL = defaultReturnURL
		}
		intent, err := svc.Initiate(r.Context(), detail.Order.ID, returnURL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentLinkResponse(intent))
	}
}

// ownedOrder loads the order named in the path and hides orders that belong
// to someone else behind NOT_FOUND.
func ownedOrder(r *http.Request, svc internalorders.Service) (*internalorders.Detail, error) {
	userID, err := callerID(r)
	if err != nil {
		return nil, err
	}
	orderID, err := validators.URLParamUUID(r, "orderId")
	if err != nil {
		return nil, err
	}
	detail, err := svc.Get(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if detail.Order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return detail, nil
}
