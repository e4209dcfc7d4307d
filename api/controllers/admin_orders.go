package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/api/middleware"
	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	internalorders "github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

const (
	defaultStaleLimit = 50
	maxStaleLimit     = 500
)

func adminActor(r *http.Request) (internalorders.Actor, error) {
	userID, err := callerID(r)
	if err != nil {
		return internalorders.Actor{}, err
	}
	return internalorders.Actor{Role: middleware.RoleFromContext(r.Context()), UserID: &userID}, nil
}

func AdminGetOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(*detail))
	}
}

type advanceStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// AdminAdvanceOrderStatus moves an order along the lifecycle on behalf of
// the calling admin.
func AdminAdvanceOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload advanceStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		result, err := svc.AdvanceStatus(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			Target:  target,
			Actor:   actor,
			Note:    validators.SanitizeString(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransitionResponse(result))
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func AdminCancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Cancel(r.Context(), orderID, validators.SanitizeString(payload.Reason, 500), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransitionResponse(result))
	}
}

type staleOrdersResponse struct {
	Status           string      `json:"status"`
	OlderThanMinutes int         `json:"older_than_minutes"`
	OrderIDs         []uuid.UUID `json:"order_ids"`
}

// AdminListStaleOrders lists orders stuck in a status, the same query the
// expiry job uses.
func AdminListStaleOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := validators.ParseOrderStatusQuery(r, "status")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		minutes, err := validators.ParseQueryInt(r, "older_than_minutes", 60, 1, 60*24*90)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultStaleLimit, 1, maxStaleLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids, err := svc.ListStale(r.Context(), status, time.Duration(minutes)*time.Minute, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		responses.WriteSuccess(w, staleOrdersResponse{
			Status:           status.String(),
			OlderThanMinutes: minutes,
			OrderIDs:         ids,
		})
	}
}
