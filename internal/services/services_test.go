package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/cache"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixtures struct {
	dakar, mercerie, premium models.Supplier
	bazin, fil, bouton       models.Article
}

func seedCatalog(t *testing.T, db *gorm.DB) fixtures {
	t.Helper()
	f := fixtures{
		dakar:    models.Supplier{Name: "Textiles Dakar SARL", Email: "contact@textilesdakar.sn"},
		mercerie: models.Supplier{Name: "Mercerie Centrale"},
		premium:  models.Supplier{Name: "Tissus Premium"},
		bazin:    models.Article{Name: "Tissu Bazin", UnitPrice: decimal.NewFromInt(15000), Stock: 50},
		fil:      models.Article{Name: "Fil à coudre", UnitPrice: decimal.NewFromInt(8000), Stock: 200},
		bouton:   models.Article{Name: "Boutons", UnitPrice: decimal.NewFromInt(500), Stock: 1000},
	}
	for _, s := range []*models.Supplier{&f.dakar, &f.mercerie, &f.premium} {
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("supplier: %v", err)
		}
	}
	for _, a := range []*models.Article{&f.bazin, &f.fil, &f.bouton} {
		if err := db.Create(a).Error; err != nil {
			t.Fatalf("article: %v", err)
		}
	}
	return f
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func line(a models.Article, qty int, price int64) LineInput {
	return LineInput{ArticleID: a.ID, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}
}

// createOrder stores an order through OrderService so that totals and references are real.
func createOrder(t *testing.T, svc *OrderService, date time.Time, sup models.Supplier, lines ...LineInput) *models.Order {
	t.Helper()
	o, err := svc.Create(context.Background(), OrderInput{OrderDate: date, SupplierID: sup.ID, Lines: lines})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func newCatalog(db *gorm.DB) *CatalogService {
	return NewCatalogService(db, cache.NewMemory(), time.Minute)
}
