package availability

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

// CreateVariantInput describes a new sellable variant.
type CreateVariantInput struct {
	ProductID uuid.UUID
	SKU       string
	Brand     string
	Size      string
	Price     decimal.Decimal
	Stock     int
}

// ProductView is a product with its variants and aggregate status.
type ProductView struct {
	Product models.Product
	Status  enums.VariantStatus
}

func (s *Service) CreateProduct(ctx context.Context, name string) (*models.Product, error) {
	name = cleanName(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	product := &models.Product{Name: name}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return product, nil
}

// CreateVariant adds a variant whose initial status is derived from its
// opening stock.
func (s *Service) CreateVariant(ctx context.Context, input CreateVariantInput) (*models.ProductVariant, error) {
	input.SKU = cleanName(input.SKU)
	switch {
	case input.SKU == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	case input.Stock < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	case !validPrice(input.Price):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive with at most two decimals")
	}

	variant := &models.ProductVariant{
		ProductID: input.ProductID,
		SKU:       input.SKU,
		Brand:     cleanName(input.Brand),
		Size:      cleanName(input.Size),
		Price:     input.Price,
		Stock:     input.Stock,
		Status:    DeriveStatus(input.Stock),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindProduct(ctx, input.ProductID); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if err := repo.CreateVariant(ctx, variant); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "sku already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create variant")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return variant, nil
}

func (s *Service) UpdatePrice(ctx context.Context, variantID uuid.UUID, price decimal.Decimal) (*models.ProductVariant, error) {
	if !validPrice(price) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive with at most two decimals")
	}
	if err := s.repo.UpdatePrice(ctx, variantID, price); err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update price")
	}
	return s.GetVariant(ctx, variantID)
}

// Restock adds received units through the ledger and re-derives the status.
func (s *Service) Restock(ctx context.Context, variantID uuid.UUID, qty int) (*models.ProductVariant, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		mv, err := s.ledger.Increment(ctx, tx, variantID, qty)
		if err != nil {
			return err
		}
		return s.Settle(ctx, tx, mv)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"variant_id": variantID.String(),
		"quantity":   qty,
	}), "variant restocked")
	return s.GetVariant(ctx, variantID)
}

// DeleteVariant removes a variant that no order line or cart hold references.
func (s *Service) DeleteVariant(ctx context.Context, variantID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.LockVariant(ctx, tx, variantID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		lines, err := repo.CountOrderLines(ctx, variantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count order lines")
		}
		if lines > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "variant is referenced by orders")
		}
		holds, err := repo.CountHolds(ctx, variantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count cart holds")
		}
		if holds > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "variant is held in carts")
		}
		if err := repo.DeleteVariant(ctx, variantID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete variant")
		}
		return nil
	})
}

func (s *Service) GetVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	return variant, nil
}

func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductView, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	view := toView(*product)
	return &view, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]ProductView, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	views := make([]ProductView, 0, len(products))
	for _, product := range products {
		views = append(views, toView(product))
	}
	return views, nil
}

func toView(product models.Product) ProductView {
	statuses := make([]enums.VariantStatus, 0, len(product.Variants))
	for _, variant := range product.Variants {
		statuses = append(statuses, variant.Status)
	}
	return ProductView{Product: product, Status: AggregateStatus(statuses)}
}
