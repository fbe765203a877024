package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier provides articles. Suppliers referenced by an order cannot be deleted.
type Supplier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name    string `gorm:"size:200;not null;index" json:"name" validate:"required,max=200"`
	Address string `gorm:"size:500" json:"address,omitempty" validate:"max=500"`
	Phone   string `gorm:"size:20" json:"phone,omitempty" validate:"max=20"`
	Email   string `gorm:"size:100" json:"email,omitempty" validate:"omitempty,email,max=100"`
}

// Article is a stock item that can be ordered. Articles used by an order line cannot be deleted.
type Article struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string          `gorm:"size:200;not null;index" json:"name" validate:"required,max=200"`
	Description string          `gorm:"size:500" json:"description,omitempty" validate:"max=500"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price" validate:"gte=0"`
	Stock       int             `gorm:"not null;default:0" json:"stock" validate:"gte=0"`
}

// StockValue is the current stock valued at the catalogue price.
func (a *Article) StockValue() decimal.Decimal {
	return decimal.NewFromInt(int64(a.Stock)).Mul(a.UnitPrice)
}

// All returns every persisted model, in dependency order, for migrations.
func All() []any {
	return []any{&Supplier{}, &Article{}, &Order{}, &OrderLine{}}
}
