package main

import (
	"time"

	"github.com/diewo77/go-approvisionnements/internal/cache"
	"github.com/diewo77/go-approvisionnements/internal/handlers"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"gorm.io/gorm"
)

// RouterConfig holds the services and the handlers built on top of them.
type RouterConfig struct {
	// Services
	Catalog    *services.CatalogService
	Orders     *services.OrderService
	Listing    *services.ListingService
	Dashboard  *services.DashboardService
	Reconciler *services.Reconciler

	// Handlers
	OrderHandler     *handlers.OrderHandler
	SupplierHandler  *handlers.SupplierHandler
	ArticleHandler   *handlers.ArticleHandler
	DashboardHandler *handlers.DashboardHandler
}

// NewRouterConfig wires every service and handler on db. Reference lists are
// cached in c for ttl.
func NewRouterConfig(db *gorm.DB, c cache.Cache, ttl time.Duration) *RouterConfig {
	catalog := services.NewCatalogService(db, c, ttl)
	orders := services.NewOrderService(db)
	listing := services.NewListingService(db, catalog)
	dashboard := services.NewDashboardService(db)

	return &RouterConfig{
		Catalog:    catalog,
		Orders:     orders,
		Listing:    listing,
		Dashboard:  dashboard,
		Reconciler: services.NewReconciler(db),

		OrderHandler:     handlers.NewOrderHandler(orders, listing, catalog),
		SupplierHandler:  handlers.NewSupplierHandler(catalog),
		ArticleHandler:   handlers.NewArticleHandler(catalog),
		DashboardHandler: handlers.NewDashboardHandler(dashboard),
	}
}
