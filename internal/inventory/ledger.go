// Package inventory owns the per-variant stock counter. Every mutation runs
// inside a caller-owned transaction with the variant row locked.
package inventory

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
)

// Movement describes one applied stock change.
type Movement struct {
	VariantID    uuid.UUID
	ProductID    uuid.UUID
	Delta        int
	StockAfter   int
	StatusBefore enums.VariantStatus
}

// Ledger applies decrements and increments to variant stock.
type Ledger struct {
	repo    Repository
	metrics *metrics.EngineMetrics
}

// NewLedger builds a ledger. m may be nil.
func NewLedger(repo Repository, m *metrics.EngineMetrics) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("inventory repository required")
	}
	return &Ledger{repo: repo, metrics: m}, nil
}

// Decrement takes qty units from the variant. If fewer are available it fails
// with INSUFFICIENT_STOCK and stock is left untouched.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (Movement, error) {
	if err := checkArgs(tx, qty); err != nil {
		return Movement{}, err
	}
	repo := l.repo.WithTx(tx)

	variant, err := lockOne(ctx, repo, variantID)
	if err != nil {
		return Movement{}, err
	}
	if variant.Stock < qty {
		l.metrics.StockRejected()
		return Movement{}, pkgerrors.InsufficientStock(variantID.String(), qty, variant.Stock)
	}

	ok, err := repo.TakeStock(ctx, variantID, qty)
	if err != nil {
		return Movement{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
	}
	if !ok {
		l.metrics.StockRejected()
		return Movement{}, pkgerrors.InsufficientStock(variantID.String(), qty, variant.Stock)
	}

	l.metrics.StockDecremented(qty)
	return Movement{
		VariantID:    variant.ID,
		ProductID:    variant.ProductID,
		Delta:        -qty,
		StockAfter:   variant.Stock - qty,
		StatusBefore: variant.Status,
	}, nil
}

// Increment returns qty units to the variant.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (Movement, error) {
	if err := checkArgs(tx, qty); err != nil {
		return Movement{}, err
	}
	repo := l.repo.WithTx(tx)

	variant, err := lockOne(ctx, repo, variantID)
	if err != nil {
		return Movement{}, err
	}
	ok, err := repo.ReturnStock(ctx, variantID, qty)
	if err != nil {
		return Movement{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment stock")
	}
	if !ok {
		return Movement{}, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	l.metrics.StockIncremented(qty)
	return Movement{
		VariantID:    variant.ID,
		ProductID:    variant.ProductID,
		Delta:        qty,
		StockAfter:   variant.Stock + qty,
		StatusBefore: variant.Status,
	}, nil
}

// LockVariant locks a single variant row for the rest of tx.
func (l *Ledger) LockVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*models.ProductVariant, error) {
	if !db.InTransaction(tx) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock lock requires a transaction")
	}
	return lockOne(ctx, l.repo.WithTx(tx), variantID)
}

// LockVariants locks every distinct id in ascending order so that two
// multi-variant transactions always queue instead of deadlocking.
func (l *Ledger) LockVariants(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.ProductVariant, error) {
	if !db.InTransaction(tx) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock lock requires a transaction")
	}
	repo := l.repo.WithTx(tx)

	locked := make(map[uuid.UUID]*models.ProductVariant, len(ids))
	for _, id := range SortedIDs(ids) {
		variant, err := lockOne(ctx, repo, id)
		if err != nil {
			return nil, err
		}
		locked[id] = variant
	}
	return locked, nil
}

// SortedIDs returns the distinct ids in ascending byte order, the same order
// Postgres uses for uuid columns.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}

func lockOne(ctx context.Context, repo Repository, variantID uuid.UUID) (*models.ProductVariant, error) {
	variant, err := repo.LockVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithDetails(map[string]any{"variant_id": variantID.String()})
		}
		return nil, err
	}
	return variant, nil
}

func checkArgs(tx *gorm.DB, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !db.InTransaction(tx) {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock change requires a transaction")
	}
	return nil
}
