package errors

import "net/http"

// Code is the stable, client-visible error identifier.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Order and inventory engine outcomes.
	CodeInsufficientStock        Code = "INSUFFICIENT_STOCK"
	CodeHoldNotFound             Code = "HOLD_NOT_FOUND"
	CodeEmptyCart                Code = "EMPTY_CART"
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeTerminalState            Code = "TERMINAL_STATE"
	CodeUnknownReference         Code = "UNKNOWN_REFERENCE"
	CodeCannotEnableWithoutStock Code = "CANNOT_ENABLE_WITHOUT_STOCK"
	CodeConcurrencyConflict      Code = "CONCURRENCY_CONFLICT"
	CodePaymentRejected          Code = "PAYMENT_REJECTED"
)

// Metadata drives how a code is rendered over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func respond(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg}
}

func (m Metadata) retryable() Metadata   { m.Retryable = true; return m }
func (m Metadata) withDetails() Metadata { m.DetailsAllowed = true; return m }

var metadataByCode = map[Code]Metadata{
	CodeValidation:    respond(http.StatusBadRequest, "validation failed").withDetails(),
	CodeUnauthorized:  respond(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     respond(http.StatusForbidden, "access denied"),
	CodeNotFound:      respond(http.StatusNotFound, "resource not found"),
	CodeConflict:      respond(http.StatusConflict, "conflict detected"),
	CodeStateConflict: respond(http.StatusUnprocessableEntity, "state transition disallowed").withDetails(),
	CodeIdempotency:   respond(http.StatusConflict, "idempotency key reused").withDetails(),
	CodeRateLimit:     respond(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:      respond(http.StatusInternalServerError, "internal server error").retryable(),
	CodeDependency:    respond(http.StatusServiceUnavailable, "dependency unavailable").retryable().withDetails(),

	CodeInsufficientStock:        respond(http.StatusConflict, "not enough stock for the requested quantity").withDetails(),
	CodeHoldNotFound:             respond(http.StatusNotFound, "item is not in the cart").withDetails(),
	CodeEmptyCart:                respond(http.StatusUnprocessableEntity, "cart is empty"),
	CodeInvalidTransition:        respond(http.StatusUnprocessableEntity, "order status change not allowed").withDetails(),
	CodeTerminalState:            respond(http.StatusUnprocessableEntity, "order is already closed").withDetails(),
	CodeUnknownReference:         respond(http.StatusNotFound, "payment reference not recognized").withDetails(),
	CodeCannotEnableWithoutStock: respond(http.StatusUnprocessableEntity, "variant cannot be enabled without stock").withDetails(),
	CodeConcurrencyConflict:      respond(http.StatusConflict, "request collided with another update, retry").retryable(),
	CodePaymentRejected:          respond(http.StatusPaymentRequired, "payment was rejected").withDetails(),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}
