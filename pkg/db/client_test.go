package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbclient_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), GormConfig(nil, 0))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewWithConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	boom := pkgerrors.InsufficientStock("v1", 2, 1)
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled back"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected typed error to pass through untouched, got %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record after rollback, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewWithConn(db)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "ghost"}).Error; err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, found %d rows", count)
	}
}

func TestWithTx_MapsConflicts(t *testing.T) {
	client := NewWithConn(newTestDB(t))
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return fmt.Errorf("lock variant: %w", deadlock)
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
	if !errors.Is(err, deadlock) {
		t.Fatalf("expected original cause to be preserved")
	}
}

func TestIsConcurrencyConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"lock timeout", fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked"), true},
		{"typed", pkgerrors.ConcurrencyConflict(errors.New("x")), true},
		{"plain", errors.New("no rows"), false},
	}
	for _, tc := range cases {
		if got := IsConcurrencyConflict(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payment_records_reference"}
	if !IsUniqueViolation(pgErr, "ux_payment_records_reference") {
		t.Fatalf("expected constraint match")
	}
	if IsUniqueViolation(pgErr, "other_constraint") {
		t.Fatalf("expected constraint mismatch")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: payment_records.gateway_reference"), "") {
		t.Fatalf("expected sqlite unique violation to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil is never a violation")
	}
}

func TestInTransaction(t *testing.T) {
	db := newTestDB(t)
	client := NewWithConn(db)

	if InTransaction(db) {
		t.Fatal("root connection reported as transaction")
	}
	if InTransaction(nil) {
		t.Fatal("nil connection reported as transaction")
	}
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if !InTransaction(tx) {
			return errors.New("tx not detected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
}

func TestGormConfigBridgesSlowQueries(t *testing.T) {
	if cfg := GormConfig(nil, time.Second); cfg.Logger != gormlogger.Discard {
		t.Fatalf("nil logger should silence gorm")
	}

	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	cfg := GormConfig(logg, 100*time.Millisecond)
	if !cfg.SkipDefaultTransaction {
		t.Fatalf("default transactions should be skipped")
	}

	gormWriter{logg: logg}.Printf("SLOW SQL >= %v", 100*time.Millisecond)
	out := buf.String()
	if !strings.Contains(out, `"component":"gorm"`) || !strings.Contains(out, "SLOW SQL >= 100ms") {
		t.Fatalf("unexpected log output %q", out)
	}
}
