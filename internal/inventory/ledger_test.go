package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
)

func newLedger(t *testing.T, m *metrics.EngineMetrics) (*Ledger, func(func(tx *gorm.DB) error) error, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Open(t)
	ledger, err := NewLedger(NewRepository(conn), m)
	require.NoError(t, err)
	run := func(fn func(tx *gorm.DB) error) error {
		return client.WithTx(context.Background(), fn)
	}
	return ledger, run, conn
}

func TestDecrementTakesStock(t *testing.T) {
	ledger, run, conn := newLedger(t, nil)
	variant := dbtest.SeedVariant(t, conn, 5, "19.99")

	var mv Movement
	err := run(func(tx *gorm.DB) error {
		var err error
		mv, err = ledger.Decrement(context.Background(), tx, variant.ID, 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, -3, mv.Delta)
	assert.Equal(t, 2, mv.StockAfter)
	assert.Equal(t, enums.VariantStatusAvailable, mv.StatusBefore)
	assert.Equal(t, 2, dbtest.Variant(t, conn, variant.ID).Stock)
}

func TestDecrementToZeroDemotesAvailable(t *testing.T) {
	ledger, run, conn := newLedger(t, nil)
	variant := dbtest.SeedVariant(t, conn, 2, "10.00")

	require.NoError(t, run(func(tx *gorm.DB) error {
		_, err := ledger.Decrement(context.Background(), tx, variant.ID, 2)
		return err
	}))

	got := dbtest.Variant(t, conn, variant.ID)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, enums.VariantStatusOutOfStock, got.Status)
}

func TestDecrementInsufficientLeavesStock(t *testing.T) {
	ledger, run, conn := newLedger(t, nil)
	variant := dbtest.SeedVariant(t, conn, 1, "10.00")

	err := run(func(tx *gorm.DB) error {
		_, err := ledger.Decrement(context.Background(), tx, variant.ID, 2)
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 1, dbtest.Variant(t, conn, variant.ID).Stock)
}

func TestIncrementKeepsDisabled(t *testing.T) {
	ledger, run, conn := newLedger(t, nil)
	variant := dbtest.SeedVariant(t, conn, 0, "10.00")
	require.NoError(t, conn.Model(variant).Update("status", enums.VariantStatusDisabled).Error)

	var mv Movement
	require.NoError(t, run(func(tx *gorm.DB) error {
		var err error
		mv, err = ledger.Increment(context.Background(), tx, variant.ID, 4)
		return err
	}))

	got := dbtest.Variant(t, conn, variant.ID)
	assert.Equal(t, 4, got.Stock)
	assert.Equal(t, enums.VariantStatusDisabled, got.Status)
	assert.Equal(t, 4, mv.StockAfter)
}

func TestLedgerRejectsBadArguments(t *testing.T) {
	ledger, run, conn := newLedger(t, nil)
	variant := dbtest.SeedVariant(t, conn, 3, "10.00")
	ctx := context.Background()

	t.Run("non-positive quantity", func(t *testing.T) {
		err := run(func(tx *gorm.DB) error {
			_, err := ledger.Decrement(ctx, tx, variant.ID, 0)
			return err
		})
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
		err = run(func(tx *gorm.DB) error {
			_, err := ledger.Increment(ctx, tx, variant.ID, -1)
			return err
		})
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	t.Run("outside transaction", func(t *testing.T) {
		_, err := ledger.Decrement(ctx, conn, variant.ID, 1)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
		assert.Equal(t, 3, dbtest.Variant(t, conn, variant.ID).Stock)
	})

	t.Run("unknown variant", func(t *testing.T) {
		err := run(func(tx *gorm.DB) error {
			_, err := ledger.Increment(ctx, tx, uuid.New(), 1)
			return err
		})
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
}

func TestLockVariantsDedupesAndSorts(t *testing.T) {
	ledger, run, conn := newLedger(t, nil)
	a := dbtest.SeedVariant(t, conn, 1, "5.00")
	b := dbtest.SeedVariant(t, conn, 2, "6.00")

	require.NoError(t, run(func(tx *gorm.DB) error {
		locked, err := ledger.LockVariants(context.Background(), tx, []uuid.UUID{b.ID, a.ID, b.ID})
		require.NoError(t, err)
		assert.Len(t, locked, 2)
		assert.Equal(t, 2, locked[b.ID].Stock)
		return nil
	}))

	ids := SortedIDs([]uuid.UUID{b.ID, a.ID, b.ID})
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestLedgerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewEngineMetrics(reg)
	ledger, run, conn := newLedger(t, m)
	variant := dbtest.SeedVariant(t, conn, 2, "5.00")
	ctx := context.Background()

	_ = run(func(tx *gorm.DB) error {
		_, err := ledger.Decrement(ctx, tx, variant.ID, 2)
		return err
	})
	_ = run(func(tx *gorm.DB) error {
		_, err := ledger.Decrement(ctx, tx, variant.ID, 1)
		return err
	})

	expected := `
# HELP threadline_stock_rejections_total Decrements refused for insufficient stock.
# TYPE threadline_stock_rejections_total counter
threadline_stock_rejections_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "threadline_stock_rejections_total"))
}
