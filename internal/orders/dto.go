package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Actor identifies who drives a status change.
type Actor struct {
	Role   enums.ActorRole
	UserID *uuid.UUID
}

// TransitionInput is a requested status change.
type TransitionInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   Actor
	Note    string
}

// TransitionResult reports an applied status change.
type TransitionResult struct {
	Order *models.Order
	From  enums.OrderStatus
	To    enums.OrderStatus
}

// Detail is an order with its lines, status history and current status.
type Detail struct {
	Order  models.Order
	Status enums.OrderStatus
}

// Page is one slice of a customer's order history, newest first.
// NextCursor is empty on the last page.
type Page struct {
	Orders     []Detail
	NextCursor string
}

func toDetail(order models.Order) Detail {
	status := enums.OrderStatus("")
	if n := len(order.Events); n > 0 {
		status = order.Events[n-1].Status
	}
	return Detail{Order: order, Status: status}
}
