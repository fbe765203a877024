package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/validation"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// referenceAttempts bounds the retries when two creations race for the same reference.
const referenceAttempts = 3

// OrderInput is the create/edit request for an order.
type OrderInput struct {
	OrderDate    time.Time   `json:"order_date"`
	SupplierID   uint        `json:"supplier_id" validate:"required"`
	Observations string      `json:"observations" validate:"max=1000"`
	Lines        []LineInput `json:"lines"`
}

// OrderService implements the order write paths.
type OrderService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db, now: time.Now}
}

// prepare validates the input and builds the lines and total.
func (s *OrderService) prepare(in *OrderInput) (*models.Order, error) {
	in.Observations = strings.TrimSpace(in.Observations)
	v := validation.Struct(in)
	if in.OrderDate.IsZero() {
		v["order_date"] = "required"
	}
	lines, total, lv := BuildLines(in.Lines)
	v.Merge(lv)
	if !v.Empty() {
		return nil, invalid(v)
	}
	return &models.Order{
		OrderDate:    models.DateOf(in.OrderDate),
		SupplierID:   in.SupplierID,
		Observations: in.Observations,
		Status:       models.OrderStatusPending,
		TotalAmount:  total,
		Lines:        lines,
	}, nil
}

// Create persists a new pending order with its lines in one transaction.
// The reference is derived from the existing ones for the current year; a
// uniqueness conflict with a concurrent creation is retried.
func (s *OrderService) Create(ctx context.Context, in OrderInput) (*models.Order, error) {
	order, err := s.prepare(&in)
	if err != nil {
		return nil, err
	}
	lines := order.Lines
	year := s.now().Year()

	for attempt := 1; ; attempt++ {
		order.ID = 0
		order.Lines = nil
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ref, err := nextReference(ctx, tx, year)
			if err != nil {
				return err
			}
			order.Reference = ref
			if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
				return err
			}
			fresh := make([]models.OrderLine, len(lines))
			for i := range lines {
				fresh[i] = lines[i]
				fresh[i].OrderID = order.ID
			}
			if err := tx.Omit(clause.Associations).Create(&fresh).Error; err != nil {
				return err
			}
			order.Lines = fresh
			return nil
		})
		if err == nil {
			log.Info().Str("reference", order.Reference).Str("total", order.TotalAmount.String()).Msg("order created")
			return order, nil
		}
		if !isDuplicateKey(err) || attempt >= referenceAttempts {
			return nil, storeError("create order", err)
		}
		log.Warn().Err(err).Str("reference", order.Reference).Int("attempt", attempt).Msg("reference conflict, retrying")
	}
}

// Update replaces the header fields and the entire line set of an order.
// The reference and status are kept.
func (s *OrderService) Update(ctx context.Context, id uint, in OrderInput) (*models.Order, error) {
	next, err := s.prepare(&in)
	if err != nil {
		return nil, err
	}
	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, id).Error; err != nil {
			return err
		}
		order.OrderDate = next.OrderDate
		order.SupplierID = next.SupplierID
		order.Observations = next.Observations
		order.TotalAmount = next.TotalAmount
		if err := tx.Model(&order).
			Select("order_date", "supplier_id", "observations", "total_amount", "updated_at").
			Updates(&order).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderLine{}).Error; err != nil {
			return err
		}
		for i := range next.Lines {
			next.Lines[i].OrderID = order.ID
		}
		if err := tx.Omit(clause.Associations).Create(&next.Lines).Error; err != nil {
			return err
		}
		order.Lines = next.Lines
		return nil
	})
	if err != nil {
		return nil, storeError("update order", err)
	}
	return &order, nil
}

// Delete removes an order and its lines. A missing id is not an error.
func (s *OrderService) Delete(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Order{}, id)
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, storeError("delete order", err)
	}
	return deleted, nil
}

// SetStatus changes the status of an order. A missing id is not an error.
func (s *OrderService) SetStatus(ctx context.Context, id uint, status models.OrderStatus) (bool, error) {
	if !status.Valid() {
		return false, invalid(validation.Violations{"status": "invalid_status"})
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return false, storeError("set order status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Get loads an order with its supplier and lines (with articles).
func (s *OrderService) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("order_lines.id ASC") }).
		Preload("Lines.Article").
		First(&order, id).Error
	if err != nil {
		return nil, storeError("get order", err)
	}
	return &order, nil
}

// InputFromOrder converts a stored order back into an edit request.
func InputFromOrder(o *models.Order) OrderInput {
	in := OrderInput{
		OrderDate:    o.Date(),
		SupplierID:   o.SupplierID,
		Observations: o.Observations,
		Lines:        make([]LineInput, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		in.Lines = append(in.Lines, LineInput{ArticleID: l.ArticleID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return in
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
