package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PageSize is the fixed number of orders per listing page.
const PageSize = 5

// Sort keys accepted by the listing.
const (
	SortDateAsc    = "date_asc"
	SortDateDesc   = "date_desc"
	SortAmountAsc  = "amount_asc"
	SortAmountDesc = "amount_desc"
	SortReference  = "reference"
)

// SortKeys lists the accepted sort keys in display order.
var SortKeys = []string{SortDateDesc, SortDateAsc, SortAmountDesc, SortAmountAsc, SortReference}

var orderBy = map[string]string{
	SortDateAsc:    "orders.order_date ASC, orders.id ASC",
	SortDateDesc:   "orders.order_date DESC, orders.id DESC",
	SortAmountAsc:  "orders.total_amount ASC, orders.id ASC",
	SortAmountDesc: "orders.total_amount DESC, orders.id DESC",
	SortReference:  "orders.reference ASC",
}

// ListingRequest is the filter/sort/page request of the order listing.
// Zero values mean "not set".
type ListingRequest struct {
	Search     string     `mapstructure:"q" json:"q,omitempty"`
	SupplierID uint       `mapstructure:"supplier_id" json:"supplier_id,omitempty"`
	ArticleID  uint       `mapstructure:"article_id" json:"article_id,omitempty"`
	DateFrom   *time.Time `mapstructure:"date_from" json:"date_from,omitempty"`
	DateTo     *time.Time `mapstructure:"date_to" json:"date_to,omitempty"`
	Sort       string     `mapstructure:"sort" json:"sort,omitempty"`
	Page       int        `mapstructure:"page" json:"page,omitempty"`
}

// Normalize applies the listing defaults: dates default to one month ago and today,
// unknown sort keys become date_desc and pages below 1 become 1.
func (r ListingRequest) Normalize(today time.Time) ListingRequest {
	day := time.Time(models.DateOf(today))
	if r.DateFrom == nil {
		from := oneMonthBefore(day)
		r.DateFrom = &from
	} else {
		from := time.Time(models.DateOf(*r.DateFrom))
		r.DateFrom = &from
	}
	if r.DateTo == nil {
		to := day
		r.DateTo = &to
	} else {
		to := time.Time(models.DateOf(*r.DateTo))
		r.DateTo = &to
	}
	r.Search = strings.TrimSpace(r.Search)
	if _, ok := orderBy[r.Sort]; !ok {
		r.Sort = SortDateDesc
	}
	if r.Page < 1 {
		r.Page = 1
	}
	return r
}

// oneMonthBefore steps back one calendar month, clamping to the last day of a shorter month.
func oneMonthBefore(day time.Time) time.Time {
	y, m, d := day.Date()
	firstOfPrev := time.Date(y, m-1, 1, 0, 0, 0, 0, day.Location())
	last := firstOfPrev.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(firstOfPrev.Year(), firstOfPrev.Month(), d, 0, 0, 0, 0, day.Location())
}

// LeadingSupplier is the supplier with the highest summed total in the filtered set.
type LeadingSupplier struct {
	SupplierID uint            `json:"supplier_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ListingStats are computed over the whole filtered set, not the page.
type ListingStats struct {
	TotalAmount decimal.Decimal  `json:"total_amount"`
	OrderCount  int64            `json:"order_count"`
	Leading     *LeadingSupplier `json:"leading_supplier,omitempty"`
}

// ListingResult is the listing response.
type ListingResult struct {
	Request    ListingRequest  `json:"request"`
	Orders     []models.Order  `json:"items"`
	Stats      ListingStats    `json:"stats"`
	TotalItems int64           `json:"total_items"`
	TotalPages int             `json:"total_pages"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	Suppliers  []Option        `json:"suppliers"`
	Articles   []ArticleOption `json:"articles"`
}

// HasPrev and HasNext drive the pager.
func (r *ListingResult) HasPrev() bool { return r.Page > 1 }
func (r *ListingResult) HasNext() bool { return r.Page < r.TotalPages }

// ListingService runs the order listing pipeline.
type ListingService struct {
	db      *gorm.DB
	catalog *CatalogService
	now     func() time.Time
}

func NewListingService(db *gorm.DB, catalog *CatalogService) *ListingService {
	return &ListingService{db: db, catalog: catalog, now: time.Now}
}

// List filters, sorts, aggregates and paginates orders.
func (s *ListingService) List(ctx context.Context, req ListingRequest) (*ListingResult, error) {
	req = req.Normalize(s.now())

	stats, err := s.stats(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &ListingResult{
		Request:    req,
		Stats:      *stats,
		TotalItems: stats.OrderCount,
		TotalPages: TotalPages(stats.OrderCount, PageSize),
		Page:       req.Page,
		PageSize:   PageSize,
	}

	err = s.sorted(ctx, req).
		Offset((req.Page - 1) * PageSize).
		Limit(PageSize).
		Find(&res.Orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders page: %w", err)
	}

	if res.Suppliers, err = s.catalog.SupplierOptions(ctx); err != nil {
		return nil, err
	}
	if res.Articles, err = s.catalog.ArticleOptions(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// All returns every order of the filtered set in listing order, with its statistics.
func (s *ListingService) All(ctx context.Context, req ListingRequest) ([]models.Order, *ListingStats, error) {
	req = req.Normalize(s.now())
	stats, err := s.stats(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	var orders []models.Order
	if err := s.sorted(ctx, req).Find(&orders).Error; err != nil {
		return nil, nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, stats, nil
}

// filtered returns a fresh query over orders matching every filter of req.
func (s *ListingService) filtered(ctx context.Context, req ListingRequest) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Joins("LEFT JOIN suppliers ON suppliers.id = orders.supplier_id")

	if req.Search != "" {
		like := containsPattern(req.Search)
		q = q.Where(`(LOWER(orders.reference) LIKE ? ESCAPE '!' OR LOWER(suppliers.name) LIKE ? ESCAPE '!')`, like, like)
	}
	if req.SupplierID > 0 {
		q = q.Where("orders.supplier_id = ?", req.SupplierID)
	}
	if req.ArticleID > 0 {
		q = q.Where("EXISTS (SELECT 1 FROM order_lines WHERE order_lines.order_id = orders.id AND order_lines.article_id = ?)", req.ArticleID)
	}
	if req.DateFrom != nil {
		q = q.Where("orders.order_date >= ?", models.DateOf(*req.DateFrom))
	}
	if req.DateTo != nil {
		q = q.Where("orders.order_date <= ?", models.DateOf(*req.DateTo))
	}
	return q
}

func (s *ListingService) sorted(ctx context.Context, req ListingRequest) *gorm.DB {
	return s.filtered(ctx, req).
		Select("orders.*").
		Order(orderBy[req.Sort]).
		Preload("Supplier").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("order_lines.id ASC") }).
		Preload("Lines.Article")
}

type supplierTotal struct {
	SupplierID uint
	Name       string
	Total      decimal.Decimal
}

func (s *ListingService) stats(ctx context.Context, req ListingRequest) (*ListingStats, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := s.filtered(ctx, req).
		Select("COALESCE(SUM(orders.total_amount), 0) AS total, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("listing totals: %w", err)
	}
	stats := &ListingStats{TotalAmount: row.Total, OrderCount: row.Count}
	if row.Count == 0 {
		return stats, nil
	}

	var top []supplierTotal
	err = s.filtered(ctx, req).
		Select("orders.supplier_id AS supplier_id, suppliers.name AS name, SUM(orders.total_amount) AS total").
		Group("orders.supplier_id, suppliers.name").
		Order("total DESC, suppliers.name ASC").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return nil, fmt.Errorf("leading supplier: %w", err)
	}
	if len(top) > 0 {
		stats.Leading = &LeadingSupplier{
			SupplierID: top[0].SupplierID,
			Name:       top[0].Name,
			Amount:     top[0].Total,
			Percentage: SharePercent(top[0].Total, stats.TotalAmount),
		}
	}
	return stats, nil
}

// SharePercent returns part/total as a percentage rounded to one decimal, 0 when total is 0.
func SharePercent(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).Round(1)
}

// TotalPages returns ceil(n / size).
func TotalPages(n int64, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return int((n + int64(size) - 1) / int64(size))
}
