package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

const (
	defaultReservedTTL = 72 * time.Hour
	defaultPendingTTL  = 2 * time.Hour
	expiryBatchSize    = 200
)

type orderCanceller interface {
	ListStale(ctx context.Context, status enums.OrderStatus, olderThan time.Duration, limit int) ([]uuid.UUID, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor orders.Actor) (*orders.TransitionResult, error)
}

// OrderExpiryJobParams configure the stale order canceller.
type OrderExpiryJobParams struct {
	Logger      *logger.Logger
	Orders      orderCanceller
	ReservedTTL time.Duration
	PendingTTL  time.Duration
	BatchSize   int
}

// NewOrderExpiryJob builds the job that cancels reserved and pending orders
// nobody acted on in time, returning their units to stock.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	job := &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  params.BatchSize,
		ttls: []statusTTL{
			{status: enums.OrderStatusReserved, ttl: params.ReservedTTL},
			{status: enums.OrderStatusPending, ttl: params.PendingTTL},
		},
	}
	if job.ttls[0].ttl <= 0 {
		job.ttls[0].ttl = defaultReservedTTL
	}
	if job.ttls[1].ttl <= 0 {
		job.ttls[1].ttl = defaultPendingTTL
	}
	if job.batch <= 0 {
		job.batch = expiryBatchSize
	}
	return job, nil
}

type statusTTL struct {
	status enums.OrderStatus
	ttl    time.Duration
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders orderCanceller
	ttls   []statusTTL
	batch  int
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	var errs error
	for _, entry := range j.ttls {
		errs = multierr.Append(errs, j.expire(ctx, entry))
	}
	return errs
}

func (j *orderExpiryJob) expire(ctx context.Context, entry statusTTL) error {
	ids, err := j.orders.ListStale(ctx, entry.status, entry.ttl, j.batch)
	if err != nil {
		return fmt.Errorf("list stale %s orders: %w", entry.status, err)
	}

	reason := fmt.Sprintf("expired after %s in %s", entry.ttl, entry.status)
	var errs error
	cancelled, skipped := 0, 0
	for _, id := range ids {
		_, err := j.orders.Cancel(ctx, id, reason, orders.Actor{Role: enums.ActorRoleSystem})
		switch {
		case err == nil:
			cancelled++
		case movedOn(err):
			// Paid or cancelled between the listing and the lock.
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"status":    entry.status,
		"ttl":       entry.ttl.String(),
		"found":     len(ids),
		"cancelled": cancelled,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	}), "order expiry pass complete")
	return errs
}

func movedOn(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeTerminalState) ||
		pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) ||
		pkgerrors.HasCode(err, pkgerrors.CodeForbidden)
}
