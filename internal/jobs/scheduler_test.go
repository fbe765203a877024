package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/cache"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRegisterValidation(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register(Job{Name: "Nightly", Schedule: "0 3 * * *", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "nightly", Schedule: "@hourly", Run: noop}), "duplicate name")
	assert.Error(t, s.Register(Job{Name: "broken", Schedule: "every day", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "", Schedule: "@hourly", Run: noop}))
	assert.Equal(t, []string{"nightly"}, s.Names())
}

func TestRunOnce(t *testing.T) {
	s := NewScheduler()
	calls := 0
	boom := errors.New("boom")
	require.NoError(t, s.Register(Job{Name: "count", Schedule: "@daily", Run: func(context.Context) error { calls++; return nil }}))
	require.NoError(t, s.Register(Job{Name: "fail", Schedule: "@daily", Run: func(context.Context) error { return boom }}))

	require.NoError(t, s.RunOnce(context.Background(), "COUNT"))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, s.RunOnce(context.Background(), "fail"), boom)
	assert.Error(t, s.RunOnce(context.Background(), "missing"))
}

func TestRunStopsWithContext(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Register(Job{Name: "tick", Schedule: "@every 1h", Run: func(context.Context) error { return nil }}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestBuiltinReconcileJob(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sup := models.Supplier{Name: "Mercerie Centrale"}
	require.NoError(t, db.Create(&sup).Error)
	art := models.Article{Name: "Boutons", UnitPrice: decimal.NewFromInt(1500)}
	require.NoError(t, db.Create(&art).Error)
	order := models.Order{
		Reference:   "APP-2024-001",
		OrderDate:   models.DateOf(time.Now()),
		SupplierID:  sup.ID,
		Status:      models.OrderStatusPending,
		TotalAmount: decimal.NewFromInt(1),
		Lines:       []models.OrderLine{{ArticleID: art.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(1500)}},
	}
	require.NoError(t, db.Create(&order).Error)

	s := NewScheduler()
	catalog := services.NewCatalogService(db, cache.NewMemory(), time.Minute)
	require.NoError(t, RegisterAll(s, Builtin(services.NewReconciler(db), catalog, "0 3 * * *")))
	assert.Equal(t, []string{RefreshListsJob, ReconcileJob}, s.Names())

	require.NoError(t, s.RunOnce(context.Background(), ReconcileJob))
	var stored models.Order
	require.NoError(t, db.First(&stored, order.ID).Error)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(3000)))

	require.NoError(t, s.RunOnce(context.Background(), RefreshListsJob))
}
