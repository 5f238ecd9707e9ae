package compare

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/quote-cli/internal/model"
)

const comparisonSheet = "Comparison"

// ExportXLSX writes a comparison to an Excel workbook with one row per
// matched line item and a trailing diagnostics block.
func ExportXLSX(cmp *model.Comparison, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", comparisonSheet); err != nil {
		return eris.Wrap(err, "compare: rename sheet")
	}

	headers := []interface{}{
		"Section", "Description", "Unit",
		cmp.LeftLabel, cmp.RightLabel, "Variance %",
	}
	if err := f.SetSheetRow(comparisonSheet, "A1", &headers); err != nil {
		return eris.Wrap(err, "compare: write header")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return eris.Wrap(err, "compare: header style")
	}
	if err := f.SetCellStyle(comparisonSheet, "A1", "F1", headerStyle); err != nil {
		return eris.Wrap(err, "compare: apply header style")
	}

	for i, row := range cmp.Rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []interface{}{
			row.Section,
			row.Description,
			row.Unit,
			amountCell(row.LeftAmount),
			amountCell(row.RightAmount),
			varianceCell(row.VariancePct),
		}
		if err := f.SetSheetRow(comparisonSheet, cell, &values); err != nil {
			return eris.Wrapf(err, "compare: write row %d", i+1)
		}
	}

	diagStart := len(cmp.Rows) + 3
	diag := cmp.Diagnostics
	lines := [][]interface{}{
		{"Left items", diag.LeftCount},
		{"Right items", diag.RightCount},
		{"Matched", diag.IntersectionSize},
		{"Shown", diag.PostFilterSize},
		{"Note", diag.Reason},
	}
	for i, line := range lines {
		cell := fmt.Sprintf("A%d", diagStart+i)
		if err := f.SetSheetRow(comparisonSheet, cell, &line); err != nil {
			return eris.Wrap(err, "compare: write diagnostics")
		}
	}

	if err := f.SetColWidth(comparisonSheet, "B", "B", 50); err != nil {
		return eris.Wrap(err, "compare: set column width")
	}

	if err := f.SaveAs(path); err != nil {
		return eris.Wrapf(err, "compare: save %s", path)
	}
	return nil
}

func amountCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func varianceCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f%%", *v)
}
