package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/availability"
	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
)

type discardOutbox struct{}

func (discardOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error { return nil }

func newTestService(t *testing.T) (Service, *db.Client, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Open(t)
	ledger, err := inventory.NewLedger(inventory.NewRepository(conn), nil)
	require.NoError(t, err)
	status, err := availability.NewService(availability.NewRepository(conn), client, ledger, discardOutbox{}, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), client, ledger, status, nil)
	require.NoError(t, err)
	return svc, client, conn
}

func holdQuantity(t *testing.T, conn *gorm.DB, userID, variantID uuid.UUID) int {
	t.Helper()
	var hold models.CartHold
	err := conn.Joins("JOIN carts ON carts.id = cart_holds.cart_id").
		Where("carts.user_id = ? AND carts.status = ? AND cart_holds.variant_id = ?", userID, enums.CartStatusActive, variantID).
		First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return hold.Quantity
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestAddOrIncreaseAccumulates(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	variant := dbtest.SeedVariant(t, conn, 5, "25.00")

	hold, err := svc.AddOrIncrease(ctx, user, variant.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, hold.Quantity)

	hold, err = svc.AddOrIncrease(ctx, user, variant.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, hold.Quantity)

	assert.Equal(t, 2, dbtest.Variant(t, conn, variant.ID).Stock)
	assert.Equal(t, 3, holdQuantity(t, conn, user, variant.ID))

	var carts int64
	require.NoError(t, conn.Model(&models.Cart{}).Where("user_id = ?", user).Count(&carts).Error)
	assert.EqualValues(t, 1, carts)
}

func TestAddOrIncreaseLastUnitMarksOutOfStock(t *testing.T) {
	svc, _, conn := newTestService(t)
	variant := dbtest.SeedVariant(t, conn, 1, "25.00")

	_, err := svc.AddOrIncrease(context.Background(), uuid.New(), variant.ID, 1)
	require.NoError(t, err)

	got := dbtest.Variant(t, conn, variant.ID)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, enums.VariantStatusOutOfStock, got.Status)
}

func TestAddOrIncreaseInsufficientStockChangesNothing(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	variant := dbtest.SeedVariant(t, conn, 3, "25.00")

	_, err := svc.AddOrIncrease(ctx, user, variant.ID, 2)
	require.NoError(t, err)

	_, err = svc.AddOrIncrease(ctx, user, variant.ID, 2)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 1, dbtest.Variant(t, conn, variant.ID).Stock)
	assert.Equal(t, 2, holdQuantity(t, conn, user, variant.ID))
}

func TestAddOrIncreaseValidation(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddOrIncrease(ctx, uuid.New(), uuid.New(), 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.AddOrIncrease(ctx, uuid.New(), uuid.New(), 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	disabled := dbtest.SeedVariant(t, conn, 4, "25.00")
	require.NoError(t, conn.Model(disabled).Update("status", enums.VariantStatusDisabled).Error)
	_, err = svc.AddOrIncrease(ctx, uuid.New(), disabled.ID, 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 4, dbtest.Variant(t, conn, disabled.ID).Stock)
}

func TestConcurrentAddsNeverOversell(t *testing.T) {
	svc, _, conn := newTestService(t)
	variant := dbtest.SeedVariant(t, conn, 3, "40.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddOrIncrease(context.Background(), uuid.New(), variant.ID, 2)
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, dbtest.Variant(t, conn, variant.ID).Stock)

	var held int64
	require.NoError(t, conn.Model(&models.CartHold{}).Select("COALESCE(SUM(quantity), 0)").Scan(&held).Error)
	assert.EqualValues(t, 2, held)
}

func TestDecreaseOrRemove(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	variant := dbtest.SeedVariant(t, conn, 2, "15.00")

	_, err := svc.DecreaseOrRemove(ctx, user, variant.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeHoldNotFound))

	_, err = svc.AddOrIncrease(ctx, user, variant.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, enums.VariantStatusOutOfStock, dbtest.Variant(t, conn, variant.ID).Status)

	hold, err := svc.DecreaseOrRemove(ctx, user, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, hold.Quantity)
	got := dbtest.Variant(t, conn, variant.ID)
	assert.Equal(t, 1, got.Stock)
	assert.Equal(t, enums.VariantStatusAvailable, got.Status)

	hold, err = svc.DecreaseOrRemove(ctx, user, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, hold.Quantity)
	assert.Equal(t, 0, holdQuantity(t, conn, user, variant.ID))
	assert.Equal(t, 2, dbtest.Variant(t, conn, variant.ID).Stock)

	other := dbtest.SeedVariant(t, conn, 2, "15.00")
	_, err = svc.DecreaseOrRemove(ctx, user, other.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeHoldNotFound))
}

func TestClearReturnsStockAndRetiresCart(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	a := dbtest.SeedVariant(t, conn, 1, "10.00")
	b := dbtest.SeedVariant(t, conn, 4, "12.00")

	_, err := svc.AddOrIncrease(ctx, user, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddOrIncrease(ctx, user, b.ID, 3)
	require.NoError(t, err)

	view, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, view.CartID)
	assert.Len(t, view.Holds, 2)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(46)), view.Subtotal.String())

	require.NoError(t, svc.Clear(ctx, user))

	gotA := dbtest.Variant(t, conn, a.ID)
	assert.Equal(t, 1, gotA.Stock)
	assert.Equal(t, enums.VariantStatusAvailable, gotA.Status)
	assert.Equal(t, 4, dbtest.Variant(t, conn, b.ID).Stock)

	view, err = svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, view.CartID)
	assert.Empty(t, view.Holds)

	require.NoError(t, svc.Clear(ctx, user))
}

func TestLoadAndConsumeForCheckout(t *testing.T) {
	svc, client, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	variant := dbtest.SeedVariant(t, conn, 2, "10.00")

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.LoadForCheckout(ctx, tx, user)
		return err
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEmptyCart))

	_, err = svc.AddOrIncrease(ctx, user, variant.ID, 2)
	require.NoError(t, err)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := svc.LoadForCheckout(ctx, tx, user)
		if err != nil {
			return err
		}
		require.Len(t, cart.Holds, 1)
		return svc.ConsumeForCheckout(ctx, tx, cart)
	}))

	assert.Equal(t, 0, dbtest.Variant(t, conn, variant.ID).Stock)
	var holds int64
	require.NoError(t, conn.Model(&models.CartHold{}).Count(&holds).Error)
	assert.Zero(t, holds)

	_, err = svc.LoadForCheckout(ctx, conn, user)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
}
