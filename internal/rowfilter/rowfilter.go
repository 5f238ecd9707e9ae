// Package rowfilter classifies raw extracted rows, drops non-item
// noise (totals, headers, exclusions), deduplicates, and reconciles
// line arithmetic before items enter normalization.
package rowfilter

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

var (
	totalPattern = regexp.MustCompile(`(?i)^\s*(sub\s*-?\s*totals?|totals?|grand\s+total|total\s+(excl|incl)|amount\s+due|balance|gst|tax)\b`)

	headerPattern = regexp.MustCompile(`(?i)^\s*(item|description|descriptions|qty|quantity|unit|uom|rate|price|total|amount|section|service|size|substrate|ref|location)\s*$`)

	exclusionPattern = regexp.MustCompile(`(?i)\b(excluded?|exclusions?|not\s+included|not\s+allowed\s+for|by\s+others|n/?a\s+in\s+this\s+quote)\b`)

	contingencyPattern = regexp.MustCompile(`(?i)\b(contingenc(y|ies)|provisional\s+sums?|prime\s+cost|p\.?c\.?\s+sums?|allowance\s+only)\b`)

	negativePattern = regexp.MustCompile(`(?i)\b(less|minus|discount|credit|deduct(ion)?)\b`)
)

// Counts tallies what classification removed.
type Counts struct {
	Items         int `json:"items"`
	Totals        int `json:"totals"`
	Headers       int `json:"headers"`
	Exclusions    int `json:"exclusions"`
	Contingencies int `json:"contingencies"`
	Empty         int `json:"empty"`
	Duplicates    int `json:"duplicates"`
}

// Result is the outcome of filtering a batch of raw rows.
type Result struct {
	Items    []model.LineItem `json:"items"`
	Excluded []model.RawRow   `json:"excluded,omitempty"`
	Counts   Counts           `json:"counts"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Options configures filtering behavior.
type Options struct {
	// RepairQuantities enables the heuristic quantity/rate repair pass.
	// Only set for rows that came out of AI extraction, where fields
	// are sometimes transposed; deterministic table extraction must not
	// be second-guessed.
	RepairQuantities bool
}

// Classify assigns a row class. Pricing presence dominates: a row with
// a rate or total is never a header, and exclusion wording only
// reclassifies rows that carry no pricing of their own.
func Classify(row model.RawRow) model.RowClass {
	desc := strings.TrimSpace(row.Description)
	hasPricing := row.Rate != nil || row.Total != nil

	if desc == "" && !hasPricing && row.Quantity == nil {
		return model.RowEmpty
	}
	if totalPattern.MatchString(desc) {
		return model.RowTotal
	}
	if !hasPricing && row.Quantity == nil && headerPattern.MatchString(desc) {
		return model.RowHeader
	}
	if contingencyPattern.MatchString(desc) {
		return model.RowContingency
	}
	if !hasPricing && exclusionPattern.MatchString(desc) {
		return model.RowExclusion
	}
	return model.RowItem
}

// Filter runs classification, deduplication, reconciliation, and the
// optional repair pass over raw rows, producing clean line items.
func Filter(rows []model.RawRow, opts Options) Result {
	res := Result{}
	seen := make(map[string]bool)

	for _, row := range rows {
		switch Classify(row) {
		case model.RowEmpty:
			res.Counts.Empty++
			continue
		case model.RowTotal:
			res.Counts.Totals++
			continue
		case model.RowHeader:
			res.Counts.Headers++
			continue
		case model.RowExclusion:
			res.Counts.Exclusions++
			res.Excluded = append(res.Excluded, row)
			continue
		case model.RowContingency:
			res.Counts.Contingencies++
			res.Excluded = append(res.Excluded, row)
			continue
		}

		key := dedupKey(row)
		if seen[key] {
			res.Counts.Duplicates++
			continue
		}
		seen[key] = true

		item, warnings := toLineItem(row)
		res.Warnings = append(res.Warnings, warnings...)
		res.Items = append(res.Items, item)
		res.Counts.Items++
	}

	if opts.RepairQuantities {
		var notes []string
		res.Items, notes = RepairQuantities(res.Items)
		res.Warnings = append(res.Warnings, notes...)
	}

	zap.L().Debug("filtered rows",
		zap.Int("in", len(rows)),
		zap.Int("items", res.Counts.Items),
		zap.Int("totals", res.Counts.Totals),
		zap.Int("headers", res.Counts.Headers),
		zap.Int("exclusions", res.Counts.Exclusions),
		zap.Int("contingencies", res.Counts.Contingencies),
		zap.Int("duplicates", res.Counts.Duplicates),
	)
	return res
}

// dedupKey builds the composite identity of a row. Quantities are
// fixed to six decimal places and rates to four so float formatting
// noise does not defeat deduplication.
func dedupKey(row model.RawRow) string {
	qty := ""
	if row.Quantity != nil {
		qty = fmt.Sprintf("%.6f", *row.Quantity)
	}
	rate := ""
	if row.Rate != nil {
		rate = fmt.Sprintf("%.4f", *row.Rate)
	}
	parts := []string{
		normalize.Fold(row.Block),
		normalize.Fold(row.Section),
		normalize.Fold(row.Service),
		normalize.Fold(row.Description),
		normalize.Fold(row.Size),
		normalize.Fold(row.Substrate),
		normalize.Fold(row.Unit),
		qty,
		rate,
	}
	return strings.Join(parts, "|")
}

// toLineItem converts a classified item row, reconciling arithmetic
// between quantity, rate, and stated total.
func toLineItem(row model.RawRow) (model.LineItem, []string) {
	var warnings []string

	item := model.LineItem{
		Section:     strings.TrimSpace(row.Section),
		Description: strings.TrimSpace(row.Description),
		Size:        strings.TrimSpace(row.Size),
		Substrate:   strings.TrimSpace(row.Substrate),
		UnitPrice:   row.Rate,
		TotalPrice:  row.Total,
	}

	if row.Quantity != nil {
		item.Quantity = *row.Quantity
	}

	nu := normalize.NormalizeUnit(row.Unit)
	item.Unit = nu.Unit

	if negativePattern.MatchString(row.Description) ||
		(row.Total != nil && *row.Total < 0) ||
		(row.Quantity != nil && *row.Quantity < 0) {
		item.Negative = true
		warnings = append(warnings, fmt.Sprintf("negative indicator on %q", item.Description))
	}

	// Arithmetic reconciliation: the supplier's stated total wins, but
	// a disagreement beyond tolerance is surfaced.
	if row.Quantity != nil && row.Rate != nil {
		calc := *row.Quantity * *row.Rate
		if row.Total != nil {
			tolerance := math.Max(math.Abs(calc)*0.01, 0.01)
			if math.Abs(calc-*row.Total) > tolerance {
				warnings = append(warnings, fmt.Sprintf(
					"arithmetic mismatch on %q: %.2f x %.2f = %.2f but stated total is %.2f; keeping stated",
					item.Description, *row.Quantity, *row.Rate, calc, *row.Total))
			}
		} else {
			item.TotalPrice = &calc
		}
	} else if row.Total != nil && row.Quantity != nil && *row.Quantity > 0 && row.Rate == nil {
		rate := *row.Total / *row.Quantity
		item.UnitPrice = &rate
	}

	item.Warnings = warnings
	return item, warnings
}
