// Package orders runs the order lifecycle: checkout, the status state machine
// and the stock return on cancellation.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
)

// Service defines order lifecycle operations.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, method enums.PaymentMethod) (*Detail, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*TransitionResult, error)
	AdvanceStatus(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error)
	CurrentStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error)
	Get(ctx context.Context, orderID uuid.UUID) (*Detail, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (*Page, error)
	ListStale(ctx context.Context, status enums.OrderStatus, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

// ServiceParams groups the order service collaborators.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Carts   CartConsumer
	Ledger  StockLedger
	Status  StatusSettler
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	carts   CartConsumer
	ledger  StockLedger
	status  StatusSettler
	metrics *metrics.EngineMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart consumer required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Status == nil:
		return nil, fmt.Errorf("status settler required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		carts:   params.Carts,
		ledger:  params.Ledger,
		status:  params.Status,
		metrics: params.Metrics,
		logg:    logg,
		now:     now,
	}, nil
}

// Checkout turns the user's held cart into an order priced at current
// variant prices. The held units move to the order without a ledger call.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, method enums.PaymentMethod) (*Detail, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	var order *models.Order
	initial := method.InitialOrderStatus()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.carts.LoadForCheckout(ctx, tx, userID)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(cart.Holds))
		for _, hold := range cart.Holds {
			ids = append(ids, hold.VariantID)
		}
		variants, err := s.ledger.LockVariants(ctx, tx, ids)
		if err != nil {
			return err
		}

		order = &models.Order{
			UserID:        userID,
			PaymentMethod: method,
			Total:         decimal.Zero,
			Lines:         make([]models.OrderLine, 0, len(cart.Holds)),
		}
		for _, hold := range cart.Holds {
			line := models.OrderLine{
				VariantID:           hold.VariantID,
				Quantity:            hold.Quantity,
				UnitPriceAtPurchase: variants[hold.VariantID].Price,
			}
			order.Lines = append(order.Lines, line)
			order.Total = order.Total.Add(line.Subtotal())
		}

		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := s.carts.ConsumeForCheckout(ctx, tx, cart); err != nil {
			return err
		}
		event := &models.OrderStatusEvent{
			OrderID:   order.ID,
			Status:    initial,
			ActorRole: enums.ActorRoleCustomer,
		}
		if err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append order status")
		}
		order.Events = []models.OrderStatusEvent{*event}

		actor := Actor{Role: enums.ActorRoleCustomer, UserID: &userID}
		return s.emit(ctx, tx, enums.EventOrderCreated, order.ID, actor, createdPayload(order, initial))
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}

	s.metrics.Transition("", initial.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"user_id":  userID.String(),
		"status":   initial,
		"total":    order.Total.StringFixed(2),
	}), "order created")
	detail := toDetail(*order)
	return &detail, nil
}

// Cancel moves the order to cancelled and returns every line's units to stock.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*TransitionResult, error) {
	return s.AdvanceStatus(ctx, TransitionInput{
		OrderID: orderID,
		Target:  enums.OrderStatusCancelled,
		Actor:   actor,
		Note:    reason,
	})
}

func (s *service) AdvanceStatus(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.TransitionTx(ctx, tx, input)
		return err
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}
	s.logTransition(ctx, result, input)
	return result, nil
}

// TransitionTx applies a status change inside the caller's transaction with
// the order row locked. A cancelled target restores stock before the event
// is appended.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error) {
	if !db.InTransaction(tx) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status change requires a transaction")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	repo := s.repo.WithTx(tx)
	order, current, err := s.lockWithStatus(ctx, repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current, input.Target, input.Actor.Role); err != nil {
		return nil, err
	}

	if input.Target == enums.OrderStatusCancelled {
		if err := s.restock(ctx, tx, repo, order.ID); err != nil {
			return nil, err
		}
	}

	event := &models.OrderStatusEvent{
		OrderID:   order.ID,
		Status:    input.Target,
		ActorRole: input.Actor.Role,
	}
	if input.Note != "" {
		note := input.Note
		event.Note = &note
	}
	if err := repo.AppendEvent(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append order status")
	}

	if current == enums.OrderStatusReserved && input.Target == enums.OrderStatusPaid {
		record := &models.PaymentRecord{
			OrderID:     order.ID,
			Method:      enums.PaymentMethodCash,
			Outcome:     enums.PaymentOutcomeApproved,
			ConfirmedAt: s.now().UTC(),
		}
		if err := repo.CreatePaymentRecord(ctx, record); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record cash payment")
		}
	}

	payload := payloads.OrderStatusChangedEvent{
		OrderID:   order.ID,
		From:      current,
		To:        input.Target,
		ActorRole: input.Actor.Role,
		Note:      input.Note,
		ChangedAt: s.now().UTC(),
	}
	if err := s.emit(ctx, tx, enums.EventOrderStatusChanged, order.ID, input.Actor, payload); err != nil {
		return nil, err
	}

	s.metrics.Transition(current.String(), input.Target.String())
	return &TransitionResult{Order: order, From: current, To: input.Target}, nil
}

// restock locks the line variants in ascending order, returns every unit and
// recomputes each variant once after the last increment.
func (s *service) restock(ctx context.Context, tx *gorm.DB, repo Repository, orderID uuid.UUID) error {
	lines, err := repo.ListLines(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order lines")
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}
	if _, err := s.ledger.LockVariants(ctx, tx, ids); err != nil {
		return err
	}
	moves := make([]inventory.Movement, 0, len(lines))
	for _, line := range lines {
		mv, err := s.ledger.Increment(ctx, tx, line.VariantID, line.Quantity)
		if err != nil {
			return err
		}
		moves = append(moves, mv)
	}
	return s.status.Settle(ctx, tx, moves...)
}

// CurrentStatus returns the latest status with the order row locked for the rest of tx.
func (s *service) CurrentStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error) {
	if !db.InTransaction(tx) {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "status read requires a transaction")
	}
	_, status, err := s.lockWithStatus(ctx, s.repo.WithTx(tx), orderID)
	return status, err
}

func (s *service) lockWithStatus(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, enums.OrderStatus, error) {
	order, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	event, err := repo.LatestEvent(ctx, orderID)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order status")
	}
	return order, event.Status, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*Detail, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	detail := toDetail(*order)
	return &detail, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	orders, err := s.repo.ListOrdersForUser(ctx, userID, cursor, pagination.LimitWithBuffer(page.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	orders, next := pagination.Page(orders, page.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := &Page{Orders: make([]Detail, 0, len(orders)), NextCursor: next}
	for _, order := range orders {
		out.Orders = append(out.Orders, toDetail(order))
	}
	return out, nil
}

// ListStale returns orders that have sat in status for longer than olderThan.
func (s *service) ListStale(ctx context.Context, status enums.OrderStatus, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListStale(ctx, status, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale orders")
	}
	return ids, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, actor Actor, data any) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Data:          data,
	})
}

func (s *service) observe(err error) {
	if pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
		s.metrics.Conflict()
	}
}

func (s *service) logTransition(ctx context.Context, result *TransitionResult, input TransitionInput) {
	fields := map[string]any{
		"order_id":   result.Order.ID.String(),
		"from":       result.From,
		"to":         result.To,
		"actor_role": input.Actor.Role,
	}
	if input.Note != "" {
		fields["note"] = input.Note
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "order status changed")
}

func createdPayload(order *models.Order, status enums.OrderStatus) payloads.OrderCreatedEvent {
	lines := make([]payloads.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, payloads.OrderLine{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPriceAtPurchase.StringFixed(2),
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		Status:        status,
		Total:         order.Total.StringFixed(2),
		Lines:         lines,
	}
}
