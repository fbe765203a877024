package db

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedLine struct {
	article  int // index into seedArticles
	quantity int
	price    int64
}

type seedOrder struct {
	reference    string
	date         time.Time
	supplier     int // index into seedSuppliers
	status       models.OrderStatus
	observations string
	lines        []seedLine
}

var seedSuppliers = []models.Supplier{
	{Name: "Textiles Dakar SARL", Address: "Zone Industrielle, Dakar", Phone: "+221 33 123 45 67", Email: "contact@textilesdakar.sn"},
	{Name: "Mercerie Centrale", Address: "Avenue Blaise Diagne, Dakar", Phone: "+221 33 987 65 43", Email: "info@merceriecentrale.sn"},
	{Name: "Tissus Premium", Address: "Marché Sandaga, Dakar", Phone: "+221 77 555 44 33", Email: "ventes@tissuspremium.sn"},
}

var seedArticles = []struct {
	name, description string
	price             int64
	stock             int
}{
	{"Tissu Bazin Riche", "Bazin de qualité supérieure", 15000, 100},
	{"Tissu Wax Hollandais", "Wax authentique", 8000, 200},
	{"Fil à coudre (lot)", "Lot de 12 bobines", 2500, 50},
	{"Boutons (paquet 100)", "Boutons assortis", 1500, 80},
	{"Fermeture éclair 20cm", "Fermetures diverses couleurs", 500, 150},
	{"Dentelle brodée (mètre)", "Dentelle de qualité", 3000, 75},
	{"Tissu Thioup", "Tissu traditionnel", 12000, 60},
	{"Perles décoratives (sachet)", "Perles pour broderie", 2000, 40},
}

var seedOrders = []seedOrder{
	{"APP-2023-001", date(2023, 4, 15), 0, models.OrderStatusReceived, "Commande urgente",
		[]seedLine{{0, 30, 15000}, {1, 25, 8000}, {6, 20, 12000}}},
	{"APP-2023-002", date(2023, 4, 10), 1, models.OrderStatusReceived, "Réapprovisionnement mensuel",
		[]seedLine{{2, 50, 2500}, {3, 30, 1500}, {4, 100, 500}, {5, 40, 3000}}},
	{"APP-2023-003", date(2023, 4, 5), 2, models.OrderStatusPending, "En cours de livraison",
		[]seedLine{{0, 20, 15000}, {7, 25, 2000}}},
	{"APP-2023-004", date(2023, 4, 1), 0, models.OrderStatusReceived, "",
		[]seedLine{{1, 50, 8000}, {6, 15, 12000}, {5, 30, 3000}}},
	{"APP-2023-005", date(2023, 3, 25), 1, models.OrderStatusReceived, "Commande spéciale client",
		[]seedLine{{0, 25, 15000}, {2, 20, 2500}, {4, 80, 500}}},
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Seed inserts the demonstration suppliers, articles and orders. It does
// nothing when suppliers already exist and reports whether data was written.
func Seed(ctx context.Context, db *gorm.DB) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Supplier{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count suppliers: %w", err)
	}
	if count > 0 {
		log.Debug().Int64("suppliers", count).Msg("seed skipped, data present")
		return false, nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		suppliers := make([]models.Supplier, len(seedSuppliers))
		copy(suppliers, seedSuppliers)
		if err := tx.Create(&suppliers).Error; err != nil {
			return fmt.Errorf("suppliers: %w", err)
		}

		articles := make([]models.Article, len(seedArticles))
		for i, a := range seedArticles {
			articles[i] = models.Article{
				Name:        a.name,
				Description: a.description,
				UnitPrice:   decimal.NewFromInt(a.price),
				Stock:       a.stock,
			}
		}
		if err := tx.Create(&articles).Error; err != nil {
			return fmt.Errorf("articles: %w", err)
		}

		for _, so := range seedOrders {
			order := models.Order{
				Reference:    so.reference,
				OrderDate:    models.DateOf(so.date),
				SupplierID:   suppliers[so.supplier].ID,
				Status:       so.status,
				Observations: so.observations,
			}
			for _, l := range so.lines {
				order.Lines = append(order.Lines, models.OrderLine{
					ArticleID: articles[l.article].ID,
					Quantity:  l.quantity,
					UnitPrice: decimal.NewFromInt(l.price),
				})
			}
			order.TotalAmount = order.LinesTotal()
			if err := tx.Create(&order).Error; err != nil {
				return fmt.Errorf("order %s: %w", so.reference, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed: %w", err)
	}
	log.Info().
		Int("suppliers", len(seedSuppliers)).
		Int("articles", len(seedArticles)).
		Int("orders", len(seedOrders)).
		Msg("seed data inserted")
	return true, nil
}
