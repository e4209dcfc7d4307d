// Package engine assembles the order and inventory services on one database
// so every process wires them the same way.
package engine

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/availability"
	"github.com/angelmondragon/threadline-backend/internal/cart"
	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
)

// TxRunner opens a database transaction. Implemented by pkg/db.Client.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params are the shared collaborators. Gateway and Locker may be nil; the
// payment service then refuses to issue links and confirms without a
// distributed lock.
type Params struct {
	DB      *gorm.DB
	Tx      TxRunner
	Outbox  *outbox.Service
	Gateway payments.Gateway
	Locker  payments.Locker
	LockTTL time.Duration
	LockKey func(reference string) string
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
}

// Engine holds the wired services.
type Engine struct {
	Ledger   *inventory.Ledger
	Catalog  *availability.Service
	Carts    cart.Service
	Orders   orders.Service
	Payments payments.Service
}

func New(p Params) (*Engine, error) {
	if p.DB == nil || p.Tx == nil || p.Outbox == nil {
		return nil, fmt.Errorf("engine requires db, transaction runner and outbox")
	}

	ledger, err := inventory.NewLedger(inventory.NewRepository(p.DB), p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("stock ledger: %w", err)
	}
	catalog, err := availability.NewService(availability.NewRepository(p.DB), p.Tx, ledger, p.Outbox, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	carts, err := cart.NewService(cart.NewRepository(p.DB), p.Tx, ledger, catalog, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(p.DB),
		Tx:      p.Tx,
		Outbox:  p.Outbox,
		Carts:   carts,
		Ledger:  ledger,
		Status:  catalog,
		Metrics: p.Metrics,
		Logger:  p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:    payments.NewRepository(p.DB),
		Tx:      p.Tx,
		Orders:  orderSvc,
		Gateway: p.Gateway,
		Locker:  p.Locker,
		Outbox:  p.Outbox,
		Metrics: p.Metrics,
		Logger:  p.Logger,
		LockTTL: p.LockTTL,
		LockKey: p.LockKey,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}

	return &Engine{
		Ledger:   ledger,
		Catalog:  catalog,
		Carts:    carts,
		Orders:   orderSvc,
		Payments: paymentSvc,
	}, nil
}
