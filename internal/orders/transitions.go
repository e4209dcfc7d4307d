package orders

import (
	"slices"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:  {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusReserved: {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:     {enums.OrderStatusPrepared, enums.OrderStatusCancelled},
	enums.OrderStatusPrepared: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:  {enums.OrderStatusDelivered},
}

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// Edges not listed here are admin-only.
var edgeActors = map[edge][]enums.ActorRole{
	{enums.OrderStatusPending, enums.OrderStatusPaid}:       {enums.ActorRolePaymentHandler},
	{enums.OrderStatusPending, enums.OrderStatusCancelled}:  {enums.ActorRolePaymentHandler, enums.ActorRoleAdmin, enums.ActorRoleSystem},
	{enums.OrderStatusReserved, enums.OrderStatusCancelled}: {enums.ActorRoleAdmin, enums.ActorRoleSystem},
}

// CanTransition reports whether the table allows moving from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// checkTransition validates the move and who is making it.
func checkTransition(from, to enums.OrderStatus, actor enums.ActorRole) error {
	if to == enums.OrderStatusCancelled && from.IsTerminal() {
		return pkgerrors.TerminalState(from.String())
	}
	if !CanTransition(from, to) {
		return pkgerrors.InvalidTransition(from.String(), to.String())
	}
	allowed, ok := edgeActors[edge{from, to}]
	if !ok {
		allowed = []enums.ActorRole{enums.ActorRoleAdmin}
	}
	if !slices.Contains(allowed, actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor may not perform this transition").
			WithDetails(map[string]any{
				"current":   from.String(),
				"attempted": to.String(),
				"actor":     actor.String(),
			})
	}
	return nil
}
