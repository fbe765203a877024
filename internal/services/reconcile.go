package services

import (
	"context"
	"fmt"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const reconcileBatch = 100

// Mismatch is an order whose stored total differs from the sum of its lines.
type Mismatch struct {
	OrderID   uint            `json:"order_id"`
	Reference string          `json:"reference"`
	Stored    decimal.Decimal `json:"stored"`
	Computed  decimal.Decimal `json:"computed"`
}

// ReconcileReport summarizes a reconciliation run.
type ReconcileReport struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
	Fixed      int        `json:"fixed"`
}

// Reconciler verifies that each order total equals the sum of its line amounts.
type Reconciler struct {
	db *gorm.DB
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Run scans all orders in batches. When fix is set, wrong totals are rewritten.
func (r *Reconciler) Run(ctx context.Context, fix bool) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	var batch []models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		FindInBatches(&batch, reconcileBatch, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				o := &batch[i]
				report.Checked++
				computed := o.LinesTotal()
				if computed.Equal(o.TotalAmount) {
					continue
				}
				report.Mismatches = append(report.Mismatches, Mismatch{
					OrderID:   o.ID,
					Reference: o.Reference,
					Stored:    o.TotalAmount,
					Computed:  computed,
				})
				if !fix {
					continue
				}
				if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", o.ID).
					Update("total_amount", computed).Error; err != nil {
					return fmt.Errorf("fix order %s: %w", o.Reference, err)
				}
				report.Fixed++
			}
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("reconcile totals: %w", err)
	}
	log.Info().
		Int("checked", report.Checked).
		Int("mismatches", len(report.Mismatches)).
		Int("fixed", report.Fixed).
		Msg("order totals reconciled")
	return report, nil
}
