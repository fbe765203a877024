// Package export renders order listings as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/diewo77/go-approvisionnements/i18n"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName   = "Approvisionnements"
	amountFmt   = `#,##0 "FCFA"`
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{"order.reference", "order.date", "order.supplier", "order.status", "order.lines", "order.observations", "order.total"}

var colWidths = []float64{16, 12, 30, 12, 10, 40, 18}

// Orders builds a workbook with one row per order followed by a summary row.
// Header labels are translated into lang.
func Orders(lang string, orders []models.Order, stats *services.ListingStats) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	headStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#8EA9DB", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(amountFmt)})
	if err != nil {
		return nil, err
	}
	summaryStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: strPtr(amountFmt)})
	if err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, i18n.T(lang, h)); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol(1), headStyle); err != nil {
		return nil, err
	}

	row := 2
	for i := range orders {
		o := &orders[i]
		total, _ := o.TotalAmount.Float64()
		values := []any{
			o.Reference,
			o.Date().Format("02/01/2006"),
			o.SupplierName(),
			i18n.T(lang, "status."+string(o.Status)),
			o.LineCount(),
			o.Observations,
			total,
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return nil, err
		}
		row++
	}
	if row > 2 {
		if err := f.SetCellStyle(sheetName, "G2", fmt.Sprintf("G%d", row-1), amountStyle); err != nil {
			return nil, err
		}
	}

	if stats != nil {
		total, _ := stats.TotalAmount.Float64()
		summary := []any{i18n.T(lang, "stats.total"), nil, nil, nil, stats.OrderCount, leadingLabel(lang, stats), total}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", row), &summary); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), lastCol(row), summaryStyle); err != nil {
			return nil, err
		}
	}

	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, lang string, orders []models.Order, stats *services.ListingStats) error {
	f, err := Orders(lang, orders, stats)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func leadingLabel(lang string, stats *services.ListingStats) string {
	if stats.Leading == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s (%s)", i18n.T(lang, "stats.leading"), stats.Leading.Name, i18n.FormatPercent(lang, stats.Leading.Percentage))
}

func lastCol(row int) string {
	cell, _ := excelize.CoordinatesToCellName(len(headers), row)
	return cell
}

func strPtr(s string) *string { return &s }
