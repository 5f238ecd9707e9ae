package compare

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/quote-cli/internal/model"
)

func ptr(v float64) *float64 { return &v }

func item(desc string, unit model.Unit, total float64) model.LineItem {
	return model.LineItem{Description: desc, Quantity: 1, Unit: unit, TotalPrice: ptr(total)}
}

func TestCompare_VariancePct(t *testing.T) {
	left := Dataset{Label: "Alpha Fire", Items: []model.LineItem{item("X", model.UnitEach, 100)}}
	right := Dataset{Label: "Beta Passive", Items: []model.LineItem{item("X", model.UnitEach, 110)}}

	cmp := Compare(left, right, Filters{})
	require.Len(t, cmp.Rows, 1)

	row := cmp.Rows[0]
	require.NotNil(t, row.VariancePct)
	// 10 over a 105 average
	assert.InDelta(t, 9.5238, *row.VariancePct, 0.001)
	assert.Equal(t, 100.0, *row.LeftAmount)
	assert.Equal(t, 110.0, *row.RightAmount)
}

func TestCompare_PerSideQtyAndRate(t *testing.T) {
	li := model.LineItem{Description: "collar", Quantity: 4, Unit: model.UnitEach, UnitPrice: ptr(40)}
	ri := model.LineItem{Description: "collar", Quantity: 6, Unit: model.UnitEach, UnitPrice: ptr(45)}

	cmp := Compare(
		Dataset{Label: "L", Items: []model.LineItem{li}},
		Dataset{Label: "R", Items: []model.LineItem{ri}},
		Filters{},
	)
	require.Len(t, cmp.Rows, 1)

	row := cmp.Rows[0]
	assert.Equal(t, 4.0, row.LeftQty)
	assert.Equal(t, 6.0, row.RightQty)
	require.NotNil(t, row.LeftRate)
	require.NotNil(t, row.RightRate)
	assert.Equal(t, 40.0, *row.LeftRate)
	assert.Equal(t, 45.0, *row.RightRate)
}

func TestCompare_CommonSections(t *testing.T) {
	l1 := item("collar", model.UnitEach, 10)
	l1.Section = "Level 1"
	l2 := item("sealant", model.UnitLinearMeter, 20)
	l2.Section = "Level 2"
	r1 := item("collar", model.UnitEach, 12)
	r1.Section = "Level 1"
	r2 := item("damper", model.UnitEach, 200)
	r2.Section = "Plant Room"

	cmp := Compare(
		Dataset{Label: "L", Items: []model.LineItem{l1, l2}},
		Dataset{Label: "R", Items: []model.LineItem{r1, r2}},
		Filters{},
	)
	assert.Equal(t, []string{"Level 1"}, cmp.Diagnostics.CommonSections)
}

func TestCompare_ZeroIntersectionHasReason(t *testing.T) {
	left := Dataset{Label: "Alpha", Items: []model.LineItem{item("fire collar 100mm", model.UnitEach, 50)}}
	right := Dataset{Label: "Beta", Items: []model.LineItem{item("batt and sealant riser", model.UnitSquareMeter, 80)}}

	cmp := Compare(left, right, Filters{})
	assert.Empty(t, cmp.Rows)
	assert.Equal(t, 0, cmp.Diagnostics.IntersectionSize)
	assert.NotEmpty(t, cmp.Diagnostics.Reason)
	assert.Contains(t, cmp.Diagnostics.Reason, "Alpha")
}

func TestCompare_CodeWinsOverDescription(t *testing.T) {
	li := model.LineItem{Code: "PF-101", Description: "collar to pipe", Quantity: 2, Unit: model.UnitEach, UnitPrice: ptr(40)}
	ri := model.LineItem{Code: "pf-101", Description: "totally different wording", Quantity: 2, Unit: model.UnitEach, UnitPrice: ptr(45)}

	cmp := Compare(
		Dataset{Label: "L", Items: []model.LineItem{li}},
		Dataset{Label: "R", Items: []model.LineItem{ri}},
		Filters{},
	)
	require.Len(t, cmp.Rows, 1)
	// amounts derived from qty * rate
	assert.Equal(t, 80.0, *cmp.Rows[0].LeftAmount)
	assert.Equal(t, 90.0, *cmp.Rows[0].RightAmount)
}

func TestCompare_SizeDisambiguates(t *testing.T) {
	l1 := item("fire collar", model.UnitEach, 40)
	l1.Size = "50mm"
	l2 := item("fire collar", model.UnitEach, 90)
	l2.Size = "100mm"
	r1 := item("fire collar", model.UnitEach, 45)
	r1.Size = "50mm"

	cmp := Compare(
		Dataset{Label: "L", Items: []model.LineItem{l1, l2}},
		Dataset{Label: "R", Items: []model.LineItem{r1}},
		Filters{},
	)
	require.Len(t, cmp.Rows, 1)
	assert.Equal(t, 40.0, *cmp.Rows[0].LeftAmount)
}

func TestCompare_VarianceThreshold(t *testing.T) {
	left := Dataset{Label: "L", Items: []model.LineItem{
		item("close", model.UnitEach, 100),
		item("far", model.UnitEach, 100),
	}}
	right := Dataset{Label: "R", Items: []model.LineItem{
		item("close", model.UnitEach, 101),
		item("far", model.UnitEach, 150),
	}}

	cmp := Compare(left, right, Filters{MinVariancePct: 10})
	require.Len(t, cmp.Rows, 1)
	assert.Equal(t, "far", cmp.Rows[0].Description)
	assert.Equal(t, 2, cmp.Diagnostics.IntersectionSize)
	assert.Equal(t, 1, cmp.Diagnostics.PostFilterSize)
}

func TestCompare_AllWithinThresholdExplains(t *testing.T) {
	left := Dataset{Label: "L", Items: []model.LineItem{item("x", model.UnitEach, 100)}}
	right := Dataset{Label: "R", Items: []model.LineItem{item("x", model.UnitEach, 100.5)}}

	cmp := Compare(left, right, Filters{MinVariancePct: 5})
	assert.Empty(t, cmp.Rows)
	assert.Contains(t, cmp.Diagnostics.Reason, "variance threshold")
}

func TestCompare_SectionFilter(t *testing.T) {
	l1 := item("collar", model.UnitEach, 10)
	l1.Section = "Level 1"
	l2 := item("sealant", model.UnitLinearMeter, 20)
	l2.Section = "Level 2"
	r1 := item("collar", model.UnitEach, 12)
	r1.Section = "Level 1"
	r2 := item("sealant", model.UnitLinearMeter, 25)
	r2.Section = "Level 2"

	cmp := Compare(
		Dataset{Label: "L", Items: []model.LineItem{l1, l2}},
		Dataset{Label: "R", Items: []model.LineItem{r1, r2}},
		Filters{Sections: []string{"level 2"}},
	)
	require.Len(t, cmp.Rows, 1)
	assert.Equal(t, "sealant", cmp.Rows[0].Description)
	assert.ElementsMatch(t, []string{"Level 1", "Level 2"}, cmp.Diagnostics.LeftSections)
}

func TestCompare_MissingAmountVariance(t *testing.T) {
	li := model.LineItem{Description: "unpriced", Quantity: 3, Unit: model.UnitEach}
	ri := item("unpriced", model.UnitEach, 30)

	cmp := Compare(
		Dataset{Label: "L", Items: []model.LineItem{li}},
		Dataset{Label: "R", Items: []model.LineItem{ri}},
		Filters{},
	)
	require.Len(t, cmp.Rows, 1)
	assert.Nil(t, cmp.Rows[0].LeftAmount)
	assert.Nil(t, cmp.Rows[0].VariancePct)

	// VariancesOnly drops the incomputable row.
	cmp = Compare(
		Dataset{Label: "L", Items: []model.LineItem{li}},
		Dataset{Label: "R", Items: []model.LineItem{ri}},
		Filters{VariancesOnly: true},
	)
	assert.Empty(t, cmp.Rows)
	assert.Equal(t, 1, cmp.Diagnostics.IntersectionSize)
}

func TestCompare_EmptySideReason(t *testing.T) {
	cmp := Compare(Dataset{Label: "L"}, Dataset{Label: "R", Items: []model.LineItem{item("x", model.UnitEach, 1)}}, Filters{})
	assert.Contains(t, cmp.Diagnostics.Reason, "no line items")
}

func TestExportXLSX(t *testing.T) {
	left := Dataset{Label: "Alpha", Items: []model.LineItem{item("fire collar 100mm", model.UnitEach, 100)}}
	right := Dataset{Label: "Beta", Items: []model.LineItem{item("fire collar 100mm", model.UnitEach, 110)}}
	cmp := Compare(left, right, Filters{})

	path := filepath.Join(t.TempDir(), "comparison.xlsx")
	require.NoError(t, ExportXLSX(cmp, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(comparisonSheet, "D1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", header)

	desc, err := f.GetCellValue(comparisonSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "fire collar 100mm", desc)

	variance, err := f.GetCellValue(comparisonSheet, "F2")
	require.NoError(t, err)
	assert.Equal(t, "9.52%", variance)
}
