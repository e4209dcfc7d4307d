// Package cart manages per-user cart holds. Every hold is stock already taken
// from the ledger, so the cart never oversells at checkout.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockLedger is the slice of the inventory ledger the cart uses.
type StockLedger interface {
	Decrement(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (inventory.Movement, error)
	Increment(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) (inventory.Movement, error)
	LockVariants(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.ProductVariant, error)
}

// StatusSettler re-derives variant statuses after ledger moves.
type StatusSettler interface {
	Settle(ctx context.Context, tx *gorm.DB, moves ...inventory.Movement) error
}

// Service exposes the cart hold operations.
type Service interface {
	AddOrIncrease(ctx context.Context, userID, variantID uuid.UUID, qty int) (*models.CartHold, error)
	DecreaseOrRemove(ctx context.Context, userID, variantID uuid.UUID) (*models.CartHold, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	LoadForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Cart, error)
	ConsumeForCheckout(ctx context.Context, tx *gorm.DB, cart *models.Cart) error
}

// View is the user's active cart priced at current variant prices.
type View struct {
	UserID   uuid.UUID
	CartID   *uuid.UUID
	Holds    []models.CartHold
	Subtotal decimal.Decimal
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger StockLedger
	status StatusSettler
	logg   *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, tx txRunner, ledger StockLedger, status StatusSettler, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if status == nil {
		return nil, fmt.Errorf("status settler required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, ledger: ledger, status: status, logg: logg}, nil
}

// AddOrIncrease takes qty more units of the variant into the user's active
// cart. qty is always a delta; repeated calls accumulate.
func (s *service) AddOrIncrease(ctx context.Context, userID, variantID uuid.UUID, qty int) (*models.CartHold, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var result *models.CartHold
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.activeCart(ctx, repo, userID, true)
		if err != nil {
			return err
		}

		locked, err := s.ledger.LockVariants(ctx, tx, []uuid.UUID{variantID})
		if err != nil {
			return err
		}
		if locked[variantID].Status == enums.VariantStatusDisabled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "variant is not for sale").
				WithDetails(map[string]any{"variant_id": variantID.String()})
		}
		mv, err := s.ledger.Decrement(ctx, tx, variantID, qty)
		if err != nil {
			return err
		}

		hold, err := repo.FindHold(ctx, cart.ID, variantID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hold = &models.CartHold{CartID: cart.ID, VariantID: variantID, Quantity: qty}
			if err := repo.CreateHold(ctx, hold); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart hold")
			}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart hold")
		default:
			hold.Quantity += qty
			if err := repo.UpdateHoldQuantity(ctx, hold.ID, hold.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart hold")
			}
		}

		if err := s.status.Settle(ctx, tx, mv); err != nil {
			return err
		}
		result = hold
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":    userID.String(),
		"variant_id": variantID.String(),
		"quantity":   qty,
		"held":       result.Quantity,
	}), "cart hold increased")
	return result, nil
}

// DecreaseOrRemove gives back exactly one unit of the hold. The hold is
// deleted when it reaches zero; the returned hold then has Quantity 0.
func (s *service) DecreaseOrRemove(ctx context.Context, userID, variantID uuid.UUID) (*models.CartHold, error) {
	var result *models.CartHold
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.activeCart(ctx, repo, userID, false)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.HoldNotFound(variantID.String())
			}
			return err
		}
		hold, err := repo.FindHold(ctx, cart.ID, variantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.HoldNotFound(variantID.String())
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart hold")
		}

		mv, err := s.ledger.Increment(ctx, tx, variantID, 1)
		if err != nil {
			return err
		}

		hold.Quantity--
		if hold.Quantity == 0 {
			err = repo.DeleteHold(ctx, hold.ID)
		} else {
			err = repo.UpdateHoldQuantity(ctx, hold.ID, hold.Quantity)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart hold")
		}

		if err := s.status.Settle(ctx, tx, mv); err != nil {
			return err
		}
		result = hold
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Clear returns every held unit to stock and retires the cart. A user
// without an active cart is a no-op.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	released := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.activeCart(ctx, repo, userID, false)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		}
		holds, err := repo.ListHolds(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart holds")
		}

		if _, err := s.ledger.LockVariants(ctx, tx, variantIDs(holds)); err != nil {
			return err
		}
		moves := make([]inventory.Movement, 0, len(holds))
		for _, hold := range holds {
			mv, err := s.ledger.Increment(ctx, tx, hold.VariantID, hold.Quantity)
			if err != nil {
				return err
			}
			moves = append(moves, mv)
			released += hold.Quantity
		}

		if err := repo.DeleteHolds(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart holds")
		}
		if err := repo.DeactivateCart(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate cart")
		}
		return s.status.Settle(ctx, tx, moves...)
	})
	if err != nil {
		return err
	}
	if released > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id":  userID.String(),
			"released": released,
		}), "cart cleared")
	}
	return nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	view := &View{UserID: userID, Holds: []models.CartHold{}, Subtotal: decimal.Zero}
	cart, err := s.repo.FindActiveCart(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return view, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	view.CartID = &cart.ID
	view.Holds = cart.Holds
	for _, hold := range cart.Holds {
		if hold.Variant == nil {
			continue
		}
		view.Subtotal = view.Subtotal.Add(hold.Variant.Price.Mul(decimal.NewFromInt(int64(hold.Quantity))))
	}
	return view, nil
}

// LoadForCheckout locks the user's active cart inside tx and loads its holds.
// No cart and an empty cart both fail with EMPTY_CART.
func (s *service) LoadForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	if !db.InTransaction(tx) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	cart, err := s.activeCart(ctx, repo, userID, false)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.EmptyCart()
		}
		return nil, err
	}
	holds, err := repo.ListHolds(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart holds")
	}
	if len(holds) == 0 {
		return nil, pkgerrors.EmptyCart()
	}
	cart.Holds = holds
	return cart, nil
}

// ConsumeForCheckout drops the holds and retires the cart without touching
// the ledger: the held units now belong to the order.
func (s *service) ConsumeForCheckout(ctx context.Context, tx *gorm.DB, cart *models.Cart) error {
	if !db.InTransaction(tx) {
		return pkgerrors.New(pkgerrors.CodeInternal, "checkout requires a transaction")
	}
	if cart == nil {
		return pkgerrors.EmptyCart()
	}
	repo := s.repo.WithTx(tx)
	if err := repo.DeleteHolds(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart holds")
	}
	if err := repo.DeactivateCart(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate cart")
	}
	return nil
}

func (s *service) activeCart(ctx context.Context, repo Repository, userID uuid.UUID, create bool) (*models.Cart, error) {
	cart, err := repo.LockActiveCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if !create {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
	}

	cart = &models.Cart{UserID: userID, Status: enums.CartStatusActive}
	if err := repo.CreateCart(ctx, cart); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.ConcurrencyConflict(err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return cart, nil
}

func variantIDs(holds []models.CartHold) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(holds))
	for _, hold := range holds {
		ids = append(ids, hold.VariantID)
	}
	return ids
}
