package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dashboardTopN = 5

type SupplierTotal struct {
	SupplierID uint            `json:"supplier_id"`
	Name       string          `json:"name"`
	Orders     int64           `json:"orders"`
	Total      decimal.Decimal `json:"total"`
}

type ArticleTotal struct {
	ArticleID uint            `json:"article_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

type MonthTotal struct {
	Month  string          `json:"month"` // YYYY-MM
	Orders int64           `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// Dashboard summarizes procurement activity between two dates (inclusive).
type Dashboard struct {
	From          time.Time                    `json:"from"`
	To            time.Time                    `json:"to"`
	Suppliers     int64                        `json:"suppliers"`
	Articles      int64                        `json:"articles"`
	Orders        int64                        `json:"orders"`
	TotalAmount   decimal.Decimal              `json:"total_amount"`
	ByStatus      map[models.OrderStatus]int64 `json:"by_status"`
	TopSuppliers  []SupplierTotal              `json:"top_suppliers"`
	TopArticles   []ArticleTotal               `json:"top_articles"`
	MonthlyTotals []MonthTotal                 `json:"monthly_totals"`
}

type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db, now: time.Now}
}

// Summary computes the dashboard for [from, to]. Zero dates default to the
// last twelve months ending today.
func (s *DashboardService) Summary(ctx context.Context, from, to time.Time) (*Dashboard, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 1)
	}
	fromD, toD := models.DateOf(from), models.DateOf(to)
	d := &Dashboard{
		From:     time.Time(fromD),
		To:       time.Time(toD),
		ByStatus: make(map[models.OrderStatus]int64, len(models.OrderStatuses)),
	}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Supplier{}).Count(&d.Suppliers).Error; err != nil {
		return nil, fmt.Errorf("count suppliers: %w", err)
	}
	if err := db.Model(&models.Article{}).Count(&d.Articles).Error; err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	inRange := func() *gorm.DB {
		return db.Model(&models.Order{}).
			Where("orders.order_date >= ? AND orders.order_date <= ?", fromD, toD)
	}

	var statusRows []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := inRange().Select("orders.status AS status, COUNT(*) AS count").
		Group("orders.status").Scan(&statusRows).Error; err != nil {
		return nil, fmt.Errorf("orders by status: %w", err)
	}
	for _, st := range models.OrderStatuses {
		d.ByStatus[st] = 0
	}
	for _, r := range statusRows {
		d.ByStatus[r.Status] = r.Count
		d.Orders += r.Count
	}

	if err := inRange().
		Joins("JOIN suppliers ON suppliers.id = orders.supplier_id").
		Select("orders.supplier_id AS supplier_id, suppliers.name AS name, COUNT(*) AS orders, SUM(orders.total_amount) AS total").
		Group("orders.supplier_id, suppliers.name").
		Order("total DESC, suppliers.name ASC").
		Limit(dashboardTopN).
		Scan(&d.TopSuppliers).Error; err != nil {
		return nil, fmt.Errorf("top suppliers: %w", err)
	}

	if err := inRange().
		Joins("JOIN order_lines ON order_lines.order_id = orders.id").
		Joins("JOIN articles ON articles.id = order_lines.article_id").
		Select("order_lines.article_id AS article_id, articles.name AS name, " +
			"SUM(order_lines.quantity) AS quantity, SUM(order_lines.quantity * order_lines.unit_price) AS total").
		Group("order_lines.article_id, articles.name").
		Order("total DESC, articles.name ASC").
		Limit(dashboardTopN).
		Scan(&d.TopArticles).Error; err != nil {
		return nil, fmt.Errorf("top articles: %w", err)
	}

	// Month bucketing is done here rather than in SQL to stay dialect neutral.
	var rows []struct {
		OrderDate   datatypes.Date
		TotalAmount decimal.Decimal
	}
	if err := inRange().Select("orders.order_date, orders.total_amount").
		Order("orders.order_date ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	d.TotalAmount = decimal.Zero
	d.MonthlyTotals = MonthlyTotals(d.From, d.To)
	index := make(map[string]int, len(d.MonthlyTotals))
	for i, m := range d.MonthlyTotals {
		index[m.Month] = i
	}
	for _, r := range rows {
		key := time.Time(r.OrderDate).Format("2006-01")
		i, ok := index[key]
		if !ok {
			continue
		}
		d.MonthlyTotals[i].Orders++
		d.MonthlyTotals[i].Total = d.MonthlyTotals[i].Total.Add(r.TotalAmount)
		d.TotalAmount = d.TotalAmount.Add(r.TotalAmount)
	}
	return d, nil
}

// MonthlyTotals returns one empty bucket per calendar month between from and to.
func MonthlyTotals(from, to time.Time) []MonthTotal {
	var out []MonthTotal
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		out = append(out, MonthTotal{Month: cur.Format("2006-01"), Total: decimal.Zero})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
