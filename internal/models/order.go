package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderStatus represents the lifecycle state of a procurement order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReceived  OrderStatus = "received"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists the statuses in display order.
var OrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusReceived, OrderStatusCancelled}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusReceived, OrderStatusCancelled:
		return true
	}
	return false
}

// ParseOrderStatus converts a form or JSON value into an OrderStatus.
func ParseOrderStatus(v string) (OrderStatus, error) {
	s := OrderStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", v)
	}
	return s, nil
}

// Order is a procurement order ("approvisionnement") placed with a supplier.
type Order struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Reference is generated on creation (APP-YYYY-NNN) and never changes.
	Reference string         `gorm:"size:50;not null;uniqueIndex" json:"reference"`
	OrderDate datatypes.Date `gorm:"not null;index" json:"order_date"`

	SupplierID uint      `gorm:"not null;index" json:"supplier_id"`
	Supplier   *Supplier `gorm:"foreignKey:SupplierID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"supplier,omitempty"`

	Observations string      `gorm:"size:1000" json:"observations,omitempty"`
	Status       OrderStatus `gorm:"size:20;not null;default:'pending'" json:"status"`

	// TotalAmount is persisted but always derived from Lines on save.
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`

	Lines []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

// Date returns the order date as a time.Time.
func (o *Order) Date() time.Time {
	return time.Time(o.OrderDate)
}

// LineCount returns the number of loaded lines.
func (o *Order) LineCount() int {
	return len(o.Lines)
}

// SupplierName returns the loaded supplier's name, or "" when not preloaded.
func (o *Order) SupplierName() string {
	if o.Supplier == nil {
		return ""
	}
	return o.Supplier.Name
}

// LinesTotal sums the amounts of the loaded lines.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Lines {
		total = total.Add(o.Lines[i].Amount())
	}
	return total
}

// IsPending returns true while goods have not been received or cancelled.
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// OrderLine is one article entry of an order, priced at order time.
type OrderLine struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	OrderID uint `gorm:"not null;index" json:"order_id"`

	ArticleID uint     `gorm:"not null;index" json:"article_id"`
	Article   *Article `gorm:"foreignKey:ArticleID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"article,omitempty"`

	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
}

// Amount calculates the line amount (quantity × unit price).
func (l *OrderLine) Amount() decimal.Decimal {
	return decimal.NewFromInt(int64(l.Quantity)).Mul(l.UnitPrice)
}

// ArticleName returns the loaded article's name, or "" when not preloaded.
func (l *OrderLine) ArticleName() string {
	if l.Article == nil {
		return ""
	}
	return l.Article.Name
}

// DateOf truncates t to a calendar date in UTC, the form order dates are stored in.
func DateOf(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
