// Package availability derives and guards the display status of product
// variants and carries the admin catalog operations.
package availability

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockLedger is the slice of the inventory ledger this package needs.
type StockLedger interface {
	LockVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*models.ProductVariant, error)
	Increment(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (inventory.Movement, error)
}

// Service is the availability engine.
type Service struct {
	repo   Repository
	tx     txRunner
	ledger StockLedger
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the availability engine.
func NewService(repo Repository, tx txRunner, ledger StockLedger, outbox outboxPublisher, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if ledger == nil {
		return nil, errors.New("stock ledger required")
	}
	if outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, tx: tx, ledger: ledger, outbox: outbox, logg: logg}, nil
}

// RecomputeAutomaticStatus sets the variant to available or out_of_stock
// from its current stock. Disabled variants are left alone.
func (s *Service) RecomputeAutomaticStatus(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (enums.VariantStatus, error) {
	return s.recompute(ctx, tx, variantID, "")
}

// Settle recomputes each variant touched by moves once, using the status seen
// before its first move as the baseline for change events. Callers run it
// after the last ledger call of the transaction.
func (s *Service) Settle(ctx context.Context, tx *gorm.DB, moves ...inventory.Movement) error {
	baseline := make(map[uuid.UUID]enums.VariantStatus, len(moves))
	ids := make([]uuid.UUID, 0, len(moves))
	for _, mv := range moves {
		if _, seen := baseline[mv.VariantID]; seen {
			continue
		}
		baseline[mv.VariantID] = mv.StatusBefore
		ids = append(ids, mv.VariantID)
	}
	for _, id := range inventory.SortedIDs(ids) {
		if _, err := s.recompute(ctx, tx, id, baseline[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, before enums.VariantStatus) (enums.VariantStatus, error) {
	if !db.InTransaction(tx) {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "status recompute requires a transaction")
	}
	variant, err := s.ledger.LockVariant(ctx, tx, variantID)
	if err != nil {
		return "", err
	}
	if before == "" {
		before = variant.Status
	}
	if variant.Status == enums.VariantStatusDisabled {
		return variant.Status, nil
	}

	next := DeriveStatus(variant.Stock)
	if next != variant.Status {
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, variantID, next); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update variant status")
		}
	}
	if next != before {
		if err := s.emitChange(ctx, tx, variant, before, next); err != nil {
			return "", err
		}
	}
	return next, nil
}

// SetManualStatus applies an admin override. Only available and disabled are
// accepted, and available needs stock.
func (s *Service) SetManualStatus(ctx context.Context, variantID uuid.UUID, target enums.VariantStatus) (*models.ProductVariant, error) {
	if !target.IsManualTarget() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be available or disabled")
	}

	var result *models.ProductVariant
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		variant, err := s.ledger.LockVariant(ctx, tx, variantID)
		if err != nil {
			return err
		}
		if target == enums.VariantStatusAvailable && variant.Stock == 0 {
			return pkgerrors.CannotEnableWithoutStock(variantID.String())
		}
		if variant.Status != target {
			if err := s.repo.WithTx(tx).UpdateStatus(ctx, variantID, target); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update variant status")
			}
			if err := s.emitChange(ctx, tx, variant, variant.Status, target); err != nil {
				return err
			}
			variant.Status = target
		}
		result = variant
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"variant_id": variantID.String(),
		"status":     result.Status,
	}), "variant status set manually")
	return result, nil
}

// ProductStatus returns the aggregate display status of a product.
func (s *Service) ProductStatus(ctx context.Context, productID uuid.UUID) (enums.VariantStatus, error) {
	if _, err := s.repo.FindProduct(ctx, productID); err != nil {
		if isNotFound(err) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	statuses, err := s.repo.ListVariantStatuses(ctx, productID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list variant statuses")
	}
	return AggregateStatus(statuses), nil
}

func (s *Service) emitChange(ctx context.Context, tx *gorm.DB, variant *models.ProductVariant, from, to enums.VariantStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventVariantStatusChanged,
		AggregateType: enums.AggregateProductVariant,
		AggregateID:   variant.ID,
		Data: payloads.VariantStatusChangedEvent{
			VariantID: variant.ID,
			ProductID: variant.ProductID,
			From:      from,
			To:        to,
			Stock:     variant.Stock,
		},
	})
}

func cleanName(value string) string {
	return strings.TrimSpace(value)
}

// validPrice accepts positive amounts with at most two decimal places.
func validPrice(price decimal.Decimal) bool {
	return price.IsPositive() && price.Equal(price.Round(2))
}
