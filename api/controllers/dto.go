package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/internal/availability"
	cartsvc "github.com/angelmondragon/threadline-backend/internal/cart"
	internalorders "github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
)

type variantResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Brand     string    `json:"brand"`
	Size      string    `json:"size"`
	Price     string    `json:"price"`
	Stock     int       `json:"stock"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newVariantResponse(v models.ProductVariant) variantResponse {
	return variantResponse{
		ID:        v.ID,
		ProductID: v.ProductID,
		SKU:       v.SKU,
		Brand:     v.Brand,
		Size:      v.Size,
		Price:     v.Price.StringFixed(2),
		Stock:     v.Stock,
		Status:    v.Status.String(),
		UpdatedAt: v.UpdatedAt,
	}
}

type productResponse struct {
	ID       uuid.UUID         `json:"id"`
	Name     string            `json:"name"`
	Status   string            `json:"status"`
	Variants []variantResponse `json:"variants"`
}

func newProductResponse(view availability.ProductView) productResponse {
	variants := make([]variantResponse, 0, len(view.Product.Variants))
	for _, v := range view.Product.Variants {
		variants = append(variants, newVariantResponse(v))
	}
	return productResponse{
		ID:       view.Product.ID,
		Name:     view.Product.Name,
		Status:   view.Status.String(),
		Variants: variants,
	}
}

type cartHoldResponse struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price,omitempty"`
	SKU       string    `json:"sku,omitempty"`
}

func newCartHoldResponse(h models.CartHold) cartHoldResponse {
	resp := cartHoldResponse{VariantID: h.VariantID, Quantity: h.Quantity}
	if h.Variant != nil {
		resp.UnitPrice = h.Variant.Price.StringFixed(2)
		resp.SKU = h.Variant.SKU
	}
	return resp
}

type cartResponse struct {
	CartID   *uuid.UUID         `json:"cart_id"`
	Holds    []cartHoldResponse `json:"holds"`
	Subtotal string             `json:"subtotal"`
}

func newCartResponse(view *cartsvc.View) cartResponse {
	holds := make([]cartHoldResponse, 0, len(view.Holds))
	for _, h := range view.Holds {
		holds = append(holds, newCartHoldResponse(h))
	}
	return cartResponse{
		CartID:   view.CartID,
		Holds:    holds,
		Subtotal: view.Subtotal.StringFixed(2),
	}
}

type orderLineResponse struct {
	VariantID           uuid.UUID `json:"variant_id"`
	Quantity            int       `json:"quantity"`
	UnitPriceAtPurchase string    `json:"unit_price_at_purchase"`
	Subtotal            string    `json:"subtotal"`
}

type orderEventResponse struct {
	Status    string    `json:"status"`
	ActorRole string    `json:"actor_role"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type orderResponse struct {
	ID            uuid.UUID            `json:"id"`
	UserID        uuid.UUID            `json:"user_id"`
	Status        string               `json:"status"`
	PaymentMethod string               `json:"payment_method"`
	Total         string               `json:"total"`
	Lines         []orderLineResponse  `json:"lines"`
	History       []orderEventResponse `json:"history"`
	CreatedAt     time.Time            `json:"created_at"`
}

type orderPageResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newOrderPageResponse(page *internalorders.Page) orderPageResponse {
	out := orderPageResponse{Orders: make([]orderResponse, 0, len(page.Orders)), NextCursor: page.NextCursor}
	for _, d := range page.Orders {
		out.Orders = append(out.Orders, newOrderResponse(d))
	}
	return out
}

func newOrderResponse(detail internalorders.Detail) orderResponse {
	order := detail.Order
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, orderLineResponse{
			VariantID:           l.VariantID,
			Quantity:            l.Quantity,
			UnitPriceAtPurchase: l.UnitPriceAtPurchase.StringFixed(2),
			Subtotal:            l.Subtotal().StringFixed(2),
		})
	}
	history := make([]orderEventResponse, 0, len(order.Events))
	for _, e := range order.Events {
		history = append(history, orderEventResponse{
			Status:    e.Status.String(),
			ActorRole: e.ActorRole.String(),
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	return orderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        detail.Status.String(),
		PaymentMethod: order.PaymentMethod.String(),
		Total:         order.Total.StringFixed(2),
		Lines:         lines,
		History:       history,
		CreatedAt:     order.CreatedAt,
	}
}

type transitionResponse struct {
	OrderID uuid.UUID `json:"order_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
}

func newTransitionResponse(result *internalorders.TransitionResult) transitionResponse {
	return transitionResponse{
		OrderID: result.Order.ID,
		From:    result.From.String(),
		To:      result.To.String(),
	}
}

type paymentLinkResponse struct {
	OrderID          uuid.UUID `json:"order_id"`
	GatewayReference string    `json:"gateway_reference"`
	CheckoutURL      string    `json:"checkout_url"`
	Amount           string    `json:"amount"`
}

func newPaymentLinkResponse(intent *models.PaymentIntent) paymentLinkResponse {
	return paymentLinkResponse{
		OrderID:          intent.OrderID,
		GatewayReference: intent.GatewayReference,
		CheckoutURL:      intent.CheckoutURL,
		Amount:           intent.Amount.StringFixed(2),
	}
}

type confirmationResponse struct {
	OrderID          uuid.UUID `json:"order_id"`
	GatewayReference string    `json:"gateway_reference"`
	Outcome          string    `json:"outcome"`
	OrderStatus      string    `json:"order_status"`
	Replayed         bool      `json:"replayed"`
}

func newConfirmationResponse(result *payments.ConfirmResult) confirmationResponse {
	resp := confirmationResponse{
		OrderID:     result.OrderID,
		Outcome:     result.Record.Outcome.String(),
		OrderStatus: result.Status.String(),
		Replayed:    result.Replayed,
	}
	if result.Record.GatewayReference != nil {
		resp.GatewayReference = *result.Record.GatewayReference
	}
	return resp
}
