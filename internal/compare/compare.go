// Package compare joins two suppliers' line items by composite key and
// reports per-row price variance with diagnostics for empty results.
package compare

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

// Dataset is one labeled side of a comparison.
type Dataset struct {
	Label string
	Items []model.LineItem
}

// Filters narrows which rows a comparison returns.
type Filters struct {
	// MinVariancePct keeps only rows whose absolute variance exceeds
	// this percentage. Zero means no threshold.
	MinVariancePct float64
	// Sections restricts both sides to the named sections before
	// matching. Empty means all sections.
	Sections []string
	// VariancesOnly drops rows where variance could not be computed.
	VariancesOnly bool
}

// Compare matches left rows against right rows by composite key and
// computes percentage variance per matched row. Diagnostics are always
// populated so an empty result explains itself.
func Compare(left, right Dataset, f Filters) *model.Comparison {
	leftItems := filterSections(left.Items, f.Sections)
	rightItems := filterSections(right.Items, f.Sections)

	rightByKey := make(map[string]model.LineItem, len(rightItems))
	for _, item := range rightItems {
		key := matchKey(item)
		if _, seen := rightByKey[key]; !seen {
			rightByKey[key] = item
		}
	}

	var rows []model.ComparisonRow
	intersection := 0
	for _, li := range leftItems {
		key := matchKey(li)
		ri, ok := rightByKey[key]
		if !ok {
			continue
		}
		intersection++

		row := model.ComparisonRow{
			Key:         key,
			Description: li.Description,
			Unit:        string(li.Unit),
			Section:     li.Section,
			LeftQty:     li.Quantity,
			RightQty:    ri.Quantity,
			LeftRate:    li.UnitPrice,
			RightRate:   ri.UnitPrice,
			LeftAmount:  li.Amount(),
			RightAmount: ri.Amount(),
		}
		row.VariancePct = variancePct(row.LeftAmount, row.RightAmount)

		if !keepRow(row, f) {
			continue
		}
		rows = append(rows, row)
	}

	diag := model.ComparisonDiagnostics{
		LeftCount:        len(left.Items),
		RightCount:       len(right.Items),
		LeftSections:     sectionNames(left.Items),
		RightSections:    sectionNames(right.Items),
		CommonSections:   commonSections(leftItems, rightItems),
		IntersectionSize: intersection,
		PostFilterSize:   len(rows),
	}
	diag.Reason = reason(left.Label, right.Label, diag, f)

	zap.L().Debug("comparison complete",
		zap.String("left", left.Label),
		zap.String("right", right.Label),
		zap.Int("intersection", intersection),
		zap.Int("rows", len(rows)),
	)

	return &model.Comparison{
		LeftLabel:   left.Label,
		RightLabel:  right.Label,
		Rows:        rows,
		Diagnostics: diag,
	}
}

// matchKey builds the composite join key for a line item: the supplier
// code when present, otherwise folded description, unit, and size (or
// first system label when no size was extracted).
func matchKey(li model.LineItem) string {
	if li.Code != "" {
		return strings.ToLower(strings.TrimSpace(li.Code))
	}
	axis := li.Size
	if axis == "" && len(li.Systems) > 0 {
		axis = li.Systems[0]
	}
	return normalize.Fold(li.Description) + "|" + strings.ToLower(string(li.Unit)) + "|" + normalize.Fold(axis)
}

// variancePct is the right-minus-left difference relative to the
// midpoint average, as a percentage. Nil when either side is missing
// or the average is zero.
func variancePct(left, right *float64) *float64 {
	if left == nil || right == nil {
		return nil
	}
	avg := (*left + *right) / 2
	if avg == 0 {
		return nil
	}
	v := (*right - *left) / avg * 100
	return &v
}

func keepRow(row model.ComparisonRow, f Filters) bool {
	if row.VariancePct == nil {
		return !f.VariancesOnly && f.MinVariancePct == 0
	}
	if f.MinVariancePct > 0 && math.Abs(*row.VariancePct) <= f.MinVariancePct {
		return false
	}
	return true
}

func filterSections(items []model.LineItem, sections []string) []model.LineItem {
	if len(sections) == 0 {
		return items
	}
	want := make(map[string]bool, len(sections))
	for _, s := range sections {
		want[normalize.Fold(s)] = true
	}
	var out []model.LineItem
	for _, li := range items {
		if want[normalize.Fold(li.Section)] {
			out = append(out, li)
		}
	}
	return out
}

// commonSections lists the sections present on both sides after the
// section filter, so an empty result can say where overlap does exist.
func commonSections(left, right []model.LineItem) []string {
	onRight := map[string]bool{}
	for _, li := range right {
		if li.Section != "" {
			onRight[li.Section] = true
		}
	}
	var out []string
	seen := map[string]bool{}
	for _, li := range left {
		if li.Section == "" || seen[li.Section] || !onRight[li.Section] {
			continue
		}
		seen[li.Section] = true
		out = append(out, li.Section)
	}
	sort.Strings(out)
	return out
}

func sectionNames(items []model.LineItem) []string {
	seen := map[string]bool{}
	var out []string
	for _, li := range items {
		if li.Section == "" || seen[li.Section] {
			continue
		}
		seen[li.Section] = true
		out = append(out, li.Section)
	}
	sort.Strings(out)
	return out
}

func reason(leftLabel, rightLabel string, d model.ComparisonDiagnostics, f Filters) string {
	switch {
	case d.LeftCount == 0 || d.RightCount == 0:
		return "one or both quotes have no line items"
	case d.IntersectionSize == 0:
		return fmt.Sprintf("no line items in %s and %s share a match key; descriptions, units, or sizes differ too much to pair", leftLabel, rightLabel)
	case d.PostFilterSize == 0 && f.MinVariancePct > 0:
		return fmt.Sprintf("all %d matched rows are within the %.1f%% variance threshold", d.IntersectionSize, f.MinVariancePct)
	case d.PostFilterSize == 0:
		return "matched rows were excluded by the active filters"
	default:
		return fmt.Sprintf("%d of %d matched rows shown", d.PostFilterSize, d.IntersectionSize)
	}
}
