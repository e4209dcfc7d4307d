package errors

import "fmt"

func InsufficientStock(variantID string, requested, available int) *Error {
	return New(CodeInsufficientStock, fmt.Sprintf("variant %s has %d available, %d requested", variantID, available, requested)).
		WithDetails(map[string]any{
			"variant_id": variantID,
			"requested":  requested,
			"available":  available,
		})
}

func HoldNotFound(variantID string) *Error {
	return New(CodeHoldNotFound, fmt.Sprintf("no cart hold for variant %s", variantID)).
		WithDetails(map[string]any{"variant_id": variantID})
}

func EmptyCart() *Error {
	return New(CodeEmptyCart, "cart contains no items")
}

// InvalidTransition always reports both ends of the rejected move.
func InvalidTransition(current, attempted string) *Error {
	return New(CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", current, attempted)).
		WithDetails(map[string]any{
			"current":   current,
			"attempted": attempted,
		})
}

func TerminalState(current string) *Error {
	return New(CodeTerminalState, fmt.Sprintf("order is %s and accepts no further changes", current)).
		WithDetails(map[string]any{"current": current})
}

func UnknownReference(reference string) *Error {
	return New(CodeUnknownReference, "no order matches the payment reference").
		WithDetails(map[string]any{"gateway_reference": reference})
}

func CannotEnableWithoutStock(variantID string) *Error {
	return New(CodeCannotEnableWithoutStock, fmt.Sprintf("variant %s has no stock", variantID)).
		WithDetails(map[string]any{"variant_id": variantID})
}

func ConcurrencyConflict(cause error) *Error {
	return Wrap(CodeConcurrencyConflict, cause, "concurrent update conflict")
}

func PaymentRejected(reference, reason string) *Error {
	msg := "payment was rejected by the gateway"
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return New(CodePaymentRejected, msg).
		WithDetails(map[string]any{
			"gateway_reference": reference,
			"reason":            reason,
		})
}
