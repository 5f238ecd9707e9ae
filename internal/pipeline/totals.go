package pipeline

import (
	"fmt"
	"math"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/ontology"
)

// ComputeTotals derives quote-level totals from the mapped item list.
// Items mapped to the catalog's site-wide commercial lines (access
// equipment, establishment, margins) are counted as add-ons; all other
// priced work is part of the penetrations subtotal. Items with no
// derivable amount are reported as warnings rather than counted as
// zero.
func ComputeTotals(items []model.LineItem) (model.QuoteTotals, []string) {
	var totals model.QuoteTotals
	var warnings []string

	for _, item := range items {
		amount := item.Amount()
		if amount == nil {
			warnings = append(warnings, fmt.Sprintf("item %q has no price, excluded from totals", item.Description))
			continue
		}
		v := *amount
		if item.Negative {
			v = -math.Abs(v)
		}
		if isAddOn(item) {
			totals.AddOns += v
		} else {
			totals.Penetrations += v
		}
	}

	totals.Penetrations = round2(totals.Penetrations)
	totals.AddOns = round2(totals.AddOns)
	totals.Grand = round2(totals.Penetrations + totals.AddOns)
	return totals, warnings
}

func isAddOn(item model.LineItem) bool {
	if item.Code == "" {
		return false
	}
	entry, ok := ontology.ByCode(item.Code)
	return ok && entry.Category == "general"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
