package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

// PaymentConfirmer applies gateway callbacks.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, input payments.ConfirmInput) (*payments.ConfirmResult, error)
}

type confirmPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=255"`
	Status    string `json:"status" validate:"required,payment_outcome"`
	Reason    string `json:"reason" validate:"max=500"`
}

// ConfirmPayment handles the gateway callback. GET requests carry the
// fields as query parameters because the gateway redirects the shopper;
// POST requests carry a JSON body.
func ConfirmPayment(svc PaymentConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload confirmPaymentRequest
		if r.Method == http.MethodGet {
			q := r.URL.Query()
			payload = confirmPaymentRequest{
				Reference: strings.TrimSpace(q.Get("reference")),
				Status:    strings.ToLower(strings.TrimSpace(q.Get("status"))),
				Reason:    validators.SanitizeString(q.Get("reason"), 500),
			}
			if err := validators.Struct(&payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		} else if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := enums.ParsePaymentOutcome(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "gateway_reference", payload.Reference)
		}
		result, err := svc.Confirm(ctx, payments.ConfirmInput{
			GatewayReference: payload.Reference,
			Approved:         outcome == enums.PaymentOutcomeApproved,
			Reason:           payload.Reason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newConfirmationResponse(result))
	}
}
