package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOrderCreate(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)
	svc.now = fixedClock(day(2024, time.March, 10))

	o := createOrder(t, svc, day(2024, time.March, 1), f.dakar, line(f.bazin, 30, 15000), line(f.fil, 25, 8000))
	assert.Equal(t, "APP-2024-001", o.Reference)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(650000)), "total = %s", o.TotalAmount)

	second := createOrder(t, svc, day(2024, time.March, 2), f.mercerie, line(f.bouton, 10, 500))
	assert.Equal(t, "APP-2024-002", second.Reference)

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Textiles Dakar SARL", got.SupplierName())
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Tissu Bazin", got.Lines[0].ArticleName())
	assert.True(t, got.LinesTotal().Equal(got.TotalAmount))
	assert.Equal(t, day(2024, time.March, 1), got.Date().UTC())
}

func TestOrderCreateValidation(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)

	_, err := svc.Create(context.Background(), OrderInput{SupplierID: f.dakar.ID})
	ve, ok := AsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, "required", ve.Violations["order_date"])
	assert.Equal(t, "at_least_one_line", ve.Violations["lines"])

	_, err = svc.Create(context.Background(), OrderInput{OrderDate: day(2024, 1, 1), Lines: []LineInput{line(f.fil, 1, 8000)}})
	ve, ok = AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "required", ve.Violations["supplier_id"])

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestOrderCreateUnknownSupplier(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)

	_, err := svc.Create(context.Background(), OrderInput{OrderDate: day(2024, 1, 1), SupplierID: 999, Lines: []LineInput{line(f.fil, 1, 8000)}})
	assert.True(t, errors.Is(err, ErrConstraint), "got %v", err)
	assert.True(t, errors.Is(err, ErrReference), "got %v", err)
	assert.False(t, errors.Is(err, ErrDuplicate))
}

func TestOrderCreateRetriesReferenceConflict(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)
	svc.now = fixedClock(day(2024, time.May, 5))

	// Simulate a concurrent creation that takes the computed reference first.
	injected := false
	err := db.Callback().Create().Before("gorm:create").Register("test:steal_reference", func(tx *gorm.DB) {
		o, ok := tx.Statement.Dest.(*models.Order)
		if !ok || injected {
			return
		}
		injected = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO orders (reference, order_date, supplier_id, status, total_amount, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			o.Reference, o.OrderDate, f.premium.ID, models.OrderStatusPending, decimal.Zero, time.Now(), time.Now(),
		)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Create().Remove("test:steal_reference") })

	o := createOrder(t, svc, day(2024, time.May, 1), f.dakar, line(f.bazin, 1, 15000))
	assert.True(t, injected)
	assert.Equal(t, "APP-2024-001", o.Reference)

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestOrderUpdateReplacesLines(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)
	ctx := context.Background()

	o := createOrder(t, svc, day(2024, time.April, 3), f.dakar, line(f.bazin, 2, 15000), line(f.fil, 1, 8000))
	require.NoError(t, svc.db.Model(o).Update("status", models.OrderStatusReceived).Error)

	updated, err := svc.Update(ctx, o.ID, OrderInput{
		OrderDate:    day(2024, time.April, 4),
		SupplierID:   f.mercerie.ID,
		Observations: "  livraison partielle ",
		Lines:        []LineInput{line(f.bouton, 100, 500)},
	})
	require.NoError(t, err)
	assert.Equal(t, o.Reference, updated.Reference)

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, f.mercerie.ID, got.SupplierID)
	assert.Equal(t, "livraison partielle", got.Observations)
	assert.Equal(t, models.OrderStatusReceived, got.Status)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, f.bouton.ID, got.Lines[0].ArticleID)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(50000)))

	var lineCount int64
	db.Model(&models.OrderLine{}).Count(&lineCount)
	assert.EqualValues(t, 1, lineCount)
}

func TestOrderUpdateMissing(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)

	_, err := svc.Update(context.Background(), 42, OrderInput{OrderDate: day(2024, 1, 1), SupplierID: f.dakar.ID, Lines: []LineInput{line(f.fil, 1, 1)}})
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestOrderDeleteAndStatus(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	svc := NewOrderService(db)
	ctx := context.Background()

	o := createOrder(t, svc, day(2024, time.June, 1), f.premium, line(f.fil, 3, 8000))

	changed, err := svc.SetStatus(ctx, o.ID, models.OrderStatusCancelled)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = svc.SetStatus(ctx, o.ID, models.OrderStatus("shipped"))
	_, isValidation := AsValidation(err)
	assert.True(t, isValidation)

	changed, err = svc.SetStatus(ctx, 999, models.OrderStatusReceived)
	require.NoError(t, err)
	assert.False(t, changed)

	deleted, err := svc.Delete(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Delete(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	var lines int64
	db.Model(&models.OrderLine{}).Count(&lines)
	assert.Zero(t, lines)

	_, err = svc.Get(ctx, o.ID)
	assert.True(t, IsNotFound(err))
}

func TestInputFromOrder(t *testing.T) {
	o := &models.Order{
		OrderDate:  models.DateOf(day(2024, 2, 29)),
		SupplierID: 3,
		Lines: []models.OrderLine{
			{ArticleID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		},
	}
	in := InputFromOrder(o)
	assert.Equal(t, uint(3), in.SupplierID)
	assert.Equal(t, day(2024, 2, 29), in.OrderDate.UTC())
	require.Len(t, in.Lines, 1)
	assert.Equal(t, 2, in.Lines[0].Quantity)
}
