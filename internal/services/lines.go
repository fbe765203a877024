package services

import (
	"fmt"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/validation"
	"github.com/shopspring/decimal"
)

// LineInput is one requested order line.
type LineInput struct {
	ArticleID uint            `json:"article_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// BuildLines validates the requested lines and computes the order total.
// Violation keys are "lines" for the empty case and "lines[i].field" otherwise.
func BuildLines(inputs []LineInput) ([]models.OrderLine, decimal.Decimal, validation.Violations) {
	v := make(validation.Violations)
	if len(inputs) == 0 {
		v["lines"] = "at_least_one_line"
		return nil, decimal.Zero, v
	}

	lines := make([]models.OrderLine, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		validation.RequiredID(lineField(i, "article_id"), in.ArticleID, v)
		validation.MinInt(lineField(i, "quantity"), in.Quantity, 1, v)
		validation.NonNegative(lineField(i, "unit_price"), in.UnitPrice, v)

		line := models.OrderLine{
			ArticleID: in.ArticleID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		}
		total = total.Add(line.Amount())
		lines = append(lines, line)
	}
	if !v.Empty() {
		return nil, decimal.Zero, v
	}
	return lines, total, v
}

func lineField(i int, name string) string {
	return fmt.Sprintf("lines[%d].%s", i, name)
}
