// Package payments issues gateway checkout links and applies gateway
// confirmations exactly once per reference.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/square"
)

const defaultLockTTL = 30 * time.Second

// ConfirmInput is a gateway callback.
type ConfirmInput struct {
	GatewayReference string
	Approved         bool
	Reason           string
}

// ConfirmResult is the stored outcome for a reference.
type ConfirmResult struct {
	OrderID  uuid.UUID
	Record   models.PaymentRecord
	Status   enums.OrderStatus
	Replayed bool
}

// Service defines payment operations.
type Service interface {
	Initiate(ctx context.Context, orderID uuid.UUID, returnURL string) (*models.PaymentIntent, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
}

// ServiceParams groups the payment service collaborators.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Orders  OrderLifecycle
	Gateway Gateway
	Locker  Locker
	Outbox  outboxPublisher
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
	LockTTL time.Duration
	LockKey func(reference string) string
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	orders  OrderLifecycle
	gateway Gateway
	locker  Locker
	outbox  outboxPublisher
	metrics *metrics.EngineMetrics
	logg    *logger.Logger
	lockTTL time.Duration
	lockKey func(string) string
	now     func() time.Time
}

// NewService builds the payment service. Gateway may be nil when no gateway
// is configured; Initiate then fails with DEPENDENCY_ERROR.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order lifecycle required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	svc := &service{
		repo:    params.Repo,
		tx:      params.Tx,
		orders:  params.Orders,
		gateway: params.Gateway,
		locker:  params.Locker,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		lockTTL: params.LockTTL,
		lockKey: params.LockKey,
		now:     params.Now,
	}
	if svc.locker == nil {
		svc.locker = NopLocker{}
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.lockTTL <= 0 {
		svc.lockTTL = defaultLockTTL
	}
	if svc.lockKey == nil {
		svc.lockKey = func(reference string) string { return "payment_confirm:" + reference }
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// Initiate asks the gateway for a checkout link covering the order total and
// remembers which order the returned reference belongs to. Calling it again
// for the same order returns the stored intent.
func (s *service) Initiate(ctx context.Context, orderID uuid.UUID, returnURL string) (*models.PaymentIntent, error) {
	detail, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if detail.Order.PaymentMethod != enums.PaymentMethodGateway {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid through the gateway")
	}
	if detail.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"current": detail.Status.String()})
	}

	if existing, err := s.repo.FindIntentByOrder(ctx, orderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}

	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	link, err := s.gateway.CreatePaymentLink(ctx, square.PaymentLinkParams{
		OrderReference: orderID.String(),
		Amount:         detail.Order.Total,
		RedirectURL:    returnURL,
		IdempotencyKey: "order-" + orderID.String(),
	})
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		OrderID:          orderID,
		GatewayReference: link.Reference,
		CheckoutURL:      link.URL,
		Amount:           detail.Order.Total,
	}
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.FindIntentByOrder(ctx, orderID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment intent")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":          orderID.String(),
		"gateway_reference": intent.GatewayReference,
	}), "payment link issued")
	return intent, nil
}

// Confirm applies a gateway outcome once. A reference that already has a
// record returns that record unchanged. Rejections return the result together
// with a PAYMENT_REJECTED error.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	reference := strings.TrimSpace(input.GatewayReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}
	ctx = s.logg.WithField(ctx, "gateway_reference", reference)

	release, err := s.locker.Obtain(ctx, s.lockKey(reference), s.lockTTL)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
			s.metrics.Conflict()
			return nil, err
		}
		s.logg.Warn(ctx, "confirm lock unavailable; relying on database uniqueness")
	} else {
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				s.logg.Warn(ctx, "releasing confirm lock failed: "+rerr.Error())
			}
		}()
	}

	if result, ok, err := s.replay(ctx, reference); ok || err != nil {
		return s.finish(result, err)
	}

	intent, err := s.repo.FindIntentByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.UnknownReference(reference)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}

	var result *ConfirmResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.apply(ctx, tx, intent, input, reference)
		return err
	})
	if err != nil && db.IsUniqueViolation(err, "") {
		if replayed, ok, rerr := s.replay(ctx, reference); ok || rerr != nil {
			return s.finish(replayed, rerr)
		}
	}
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
			s.metrics.Conflict()
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": result.OrderID.String(),
		"outcome":  result.Record.Outcome,
		"status":   result.Status,
	}), "payment confirmation applied")
	return s.finish(result, nil)
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, input ConfirmInput, reference string) (*ConfirmResult, error) {
	repo := s.repo.WithTx(tx)
	status, err := s.orders.CurrentStatus(ctx, tx, intent.OrderID)
	if err != nil {
		return nil, err
	}

	// A concurrent confirmation may have committed while this one waited on the order lock.
	if record, err := repo.FindRecordByReference(ctx, reference); err == nil {
		return &ConfirmResult{OrderID: record.OrderID, Record: *record, Status: status, Replayed: true}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment record")
	}

	target, outcome := enums.OrderStatusPaid, enums.PaymentOutcomeApproved
	if !input.Approved {
		target, outcome = enums.OrderStatusCancelled, enums.PaymentOutcomeRejected
	}
	if status != enums.OrderStatusPending {
		return nil, pkgerrors.InvalidTransition(status.String(), target.String())
	}

	note := ""
	if !input.Approved {
		note = strings.TrimSpace(input.Reason)
		if note == "" {
			note = "payment rejected"
		}
	}
	if _, err := s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
		OrderID: intent.OrderID,
		Target:  target,
		Actor:   orders.Actor{Role: enums.ActorRolePaymentHandler},
		Note:    note,
	}); err != nil {
		return nil, err
	}

	record := models.PaymentRecord{
		OrderID:          intent.OrderID,
		Method:           enums.PaymentMethodGateway,
		Outcome:          outcome,
		GatewayReference: &reference,
		ConfirmedAt:      s.now().UTC(),
	}
	if !input.Approved {
		record.FailureReason = &note
	}
	if err := repo.CreateRecord(ctx, &record); err != nil {
		return nil, err
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   intent.OrderID,
		Actor:         &outbox.ActorRef{Role: enums.ActorRolePaymentHandler},
		Data: payloads.PaymentConfirmedEvent{
			OrderID:          intent.OrderID,
			PaymentRecordID:  record.ID,
			Method:           record.Method,
			Outcome:          record.Outcome,
			GatewayReference: reference,
			FailureReason:    note,
			ConfirmedAt:      record.ConfirmedAt,
		},
	})
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{OrderID: intent.OrderID, Record: record, Status: target}, nil
}

// replay reports the stored outcome for reference, if any.
func (s *service) replay(ctx context.Context, reference string) (*ConfirmResult, bool, error) {
	record, err := s.repo.FindRecordByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment record")
	}
	result := &ConfirmResult{OrderID: record.OrderID, Record: *record, Replayed: true}
	if detail, err := s.orders.Get(ctx, record.OrderID); err == nil {
		result.Status = detail.Status
	}
	s.logg.Info(s.logg.WithField(ctx, "order_id", record.OrderID.String()), "payment confirmation replayed")
	return result, true, nil
}

func (s *service) finish(result *ConfirmResult, err error) (*ConfirmResult, error) {
	if err != nil {
		return nil, err
	}
	s.metrics.Confirmation(result.Record.Outcome.String(), result.Replayed)
	if result.Record.Outcome == enums.PaymentOutcomeRejected {
		reason := ""
		if result.Record.FailureReason != nil {
			reason = *result.Record.FailureReason
		}
		return result, pkgerrors.PaymentRejected(*result.Record.GatewayReference, reason)
	}
	return result, nil
}
