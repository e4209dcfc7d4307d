package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	"github.com/angelmondragon/threadline-backend/internal/availability"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

// CatalogReader serves the storefront catalog.
type CatalogReader interface {
	ListProducts(ctx context.Context) ([]availability.ProductView, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*availability.ProductView, error)
	GetVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
}

// CatalogAdmin is the back-office side of the catalog.
type CatalogAdmin interface {
	CreateProduct(ctx context.Context, name string) (*models.Product, error)
	CreateVariant(ctx context.Context, input availability.CreateVariantInput) (*models.ProductVariant, error)
	UpdatePrice(ctx context.Context, variantID uuid.UUID, price decimal.Decimal) (*models.ProductVariant, error)
	Restock(ctx context.Context, variantID uuid.UUID, qty int) (*models.ProductVariant, error)
	SetManualStatus(ctx context.Context, variantID uuid.UUID, target enums.VariantStatus) (*models.ProductVariant, error)
	DeleteVariant(ctx context.Context, variantID uuid.UUID) error
}

func ListProducts(svc CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ListProducts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]productResponse, 0, len(views))
		for _, view := range views {
			out = append(out, newProductResponse(view))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetProduct(svc CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductResponse(*view))
	}
}

func GetVariant(svc CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.URLParamUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant, err := svc.GetVariant(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVariantResponse(*variant))
	}
}

type createProductRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func AdminCreateProduct(svc CatalogAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), validators.SanitizeString(payload.Name, 200))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, productResponse{
			ID:       product.ID,
			Name:     product.Name,
			Status:   enums.VariantStatusDisabled.String(),
			Variants: []variantResponse{},
		})
	}
}

type createVariantRequest struct {
	SKU   string `json:"sku" validate:"required,max=64"`
	Brand string `json:"brand" validate:"max=100"`
	Size  string `json:"size" validate:"max=32"`
	Price string `json:"price" validate:"required,money"`
	Stock int    `json:"stock" validate:"min=0"`
}

func AdminCreateVariant(svc CatalogAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createVariantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant, err := svc.CreateVariant(r.Context(), availability.CreateVariantInput{
			ProductID: productID,
			SKU:       payload.SKU,
			Brand:     payload.Brand,
			Size:      payload.Size,
			Price:     decimal.RequireFromString(payload.Price),
			Stock:     payload.Stock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newVariantResponse(*variant))
	}
}

type updatePriceRequest struct {
	Price string `json:"price" validate:"required,money"`
}

func AdminUpdatePrice(svc CatalogAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.URLParamUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updatePriceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant, err := svc.UpdatePrice(r.Context(), variantID, decimal.RequireFromString(payload.Price))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVariantResponse(*variant))
	}
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

func AdminRestock(svc CatalogAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.URLParamUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant, err := svc.Restock(r.Context(), variantID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVariantResponse(*variant))
	}
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available disabled"`
}

// AdminSetVariantStatus applies a manual availability override.
func AdminSetVariantStatus(svc CatalogAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.URLParamUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload setStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseVariantStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		variant, err := svc.SetManualStatus(r.Context(), variantID, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVariantResponse(*variant))
	}
}

func AdminDeleteVariant(svc CatalogAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.URLParamUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteVariant(r.Context(), variantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
