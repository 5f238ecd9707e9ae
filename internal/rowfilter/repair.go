package rowfilter

import (
	"fmt"
	"math"

	"github.com/sells-group/quote-cli/internal/model"
)

// RepairQuantities fixes the two systematic extraction faults seen in
// AI-parsed schedules: fractional quantities that should be whole
// counts, and rate/total transposition where the per-unit rate has
// absorbed the line total. Returns the repaired items and a note per
// correction.
func RepairQuantities(items []model.LineItem) ([]model.LineItem, []string) {
	var notes []string
	out := make([]model.LineItem, len(items))

	for i, item := range items {
		qty := item.Quantity

		if qty != math.Trunc(qty) {
			repaired := math.Round(qty)
			if qty > 0.8 && qty < 1.2 {
				repaired = 1
			}
			notes = append(notes, fmt.Sprintf("quantity %.2f rounded to %.0f on %q", qty, repaired, item.Description))
			qty = repaired
		}
		if qty < 1 {
			notes = append(notes, fmt.Sprintf("quantity raised to 1 on %q", item.Description))
			qty = 1
		}
		item.Quantity = qty

		// A "rate" nearly equal to the total on a multi-quantity line
		// means the extractor put the line total in the rate column.
		if qty > 1 && item.UnitPrice != nil && item.TotalPrice != nil && *item.UnitPrice > *item.TotalPrice*0.9 {
			rate := math.Round(*item.TotalPrice/qty*100) / 100
			notes = append(notes, fmt.Sprintf("rate %.2f rewritten to %.2f (total/qty) on %q", *item.UnitPrice, rate, item.Description))
			item.UnitPrice = &rate
		}

		out[i] = item
	}

	return out, notes
}
