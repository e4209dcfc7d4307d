// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Open returns a migrated in-memory database. A single pooled connection
// makes concurrent transactions queue instead of failing with SQLITE_BUSY.
func Open(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(nil, 0))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db.NewWithConn(conn), conn
}

// SeedVariant creates a product with one variant holding stock units at price.
// The status follows stock unless disabled is set.
func SeedVariant(t *testing.T, conn *gorm.DB, stock int, price string) *models.ProductVariant {
	t.Helper()

	product := &models.Product{Name: "Heavyweight Tee"}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return SeedVariantFor(t, conn, product.ID, stock, price)
}

// SeedVariantFor adds a variant to an existing product.
func SeedVariantFor(t *testing.T, conn *gorm.DB, productID uuid.UUID, stock int, price string) *models.ProductVariant {
	t.Helper()

	status := enums.VariantStatusAvailable
	if stock == 0 {
		status = enums.VariantStatusOutOfStock
	}
	variant := &models.ProductVariant{
		ProductID: productID,
		SKU:       "SKU-" + uuid.NewString(),
		Brand:     "Threadline",
		Size:      "M",
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Status:    status,
	}
	if err := conn.Create(variant).Error; err != nil {
		t.Fatalf("create variant: %v", err)
	}
	return variant
}

// Variant reloads a variant by id.
func Variant(t *testing.T, conn *gorm.DB, id uuid.UUID) models.ProductVariant {
	t.Helper()

	var variant models.ProductVariant
	if err := conn.First(&variant, "id = ?", id).Error; err != nil {
		t.Fatalf("load variant %s: %v", id, err)
	}
	return variant
}
