// Package normalize maps the free-text units and product names found
// in supplier schedules onto canonical vocabulary so downstream
// matching and comparison operate on a closed set.
package normalize

import (
	"strings"

	"github.com/sells-group/quote-cli/internal/model"
)

// NormalizedUnit is the outcome of unit normalization. Original is
// preserved verbatim for audit; Confidence reflects how direct the
// mapping was.
type NormalizedUnit struct {
	Original   string     `json:"original"`
	Unit       model.Unit `json:"unit"`
	Confidence float64    `json:"confidence"`
}

// unitAliases maps cleaned unit strings to canonical units. Keys are
// lowercased with trailing dots and whitespace stripped.
var unitAliases = map[string]model.Unit{
	// each
	"ea":     model.UnitEach,
	"each":   model.UnitEach,
	"no":     model.UnitEach,
	"nr":     model.UnitEach,
	"num":    model.UnitEach,
	"item":   model.UnitEach,
	"items":  model.UnitEach,
	"unit":   model.UnitEach,
	"units":  model.UnitEach,
	"pc":     model.UnitEach,
	"pcs":    model.UnitEach,
	"qty":    model.UnitEach,
	"number": model.UnitEach,

	// linear metre
	"lm":            model.UnitLinearMeter,
	"l/m":           model.UnitLinearMeter,
	"lin m":         model.UnitLinearMeter,
	"lin/m":         model.UnitLinearMeter,
	"linm":          model.UnitLinearMeter,
	"lineal metre":  model.UnitLinearMeter,
	"lineal metres": model.UnitLinearMeter,
	"linear metre":  model.UnitLinearMeter,
	"linear metres": model.UnitLinearMeter,
	"linear meter":  model.UnitLinearMeter,
	"linear meters": model.UnitLinearMeter,

	// square metre
	"m2":            model.UnitSquareMeter,
	"m²":            model.UnitSquareMeter,
	"sqm":           model.UnitSquareMeter,
	"sq m":          model.UnitSquareMeter,
	"sq.m":          model.UnitSquareMeter,
	"sq metre":      model.UnitSquareMeter,
	"sq metres":     model.UnitSquareMeter,
	"square metre":  model.UnitSquareMeter,
	"square metres": model.UnitSquareMeter,
	"square meter":  model.UnitSquareMeter,
	"square meters": model.UnitSquareMeter,

	// metre
	"m":      model.UnitMeter,
	"mtr":    model.UnitMeter,
	"metre":  model.UnitMeter,
	"metres": model.UnitMeter,
	"meter":  model.UnitMeter,
	"meters": model.UnitMeter,
}

// canonical units map to themselves at full confidence.
var canonicalUnits = map[string]model.Unit{
	string(model.UnitEach):        model.UnitEach,
	string(model.UnitLinearMeter): model.UnitLinearMeter,
	string(model.UnitSquareMeter): model.UnitSquareMeter,
	string(model.UnitMeter):       model.UnitMeter,
}

// NormalizeUnit maps a raw unit string to the canonical unit set.
// Unknown units are preserved as-is with low confidence rather than
// dropped, so nothing silently disappears from a schedule.
func NormalizeUnit(raw string) NormalizedUnit {
	cleaned := cleanUnit(raw)
	if cleaned == "" {
		return NormalizedUnit{Original: raw, Unit: model.UnitUnknown, Confidence: 0}
	}

	if u, ok := canonicalUnits[cleaned]; ok {
		return NormalizedUnit{Original: raw, Unit: u, Confidence: 1.0}
	}
	if u, ok := unitAliases[cleaned]; ok {
		return NormalizedUnit{Original: raw, Unit: u, Confidence: 0.95}
	}

	// Second pass with punctuation collapsed, e.g. "lin. m" or "sq-m".
	relaxed := relaxUnit(cleaned)
	if u, ok := unitAliases[relaxed]; ok {
		return NormalizedUnit{Original: raw, Unit: u, Confidence: 0.8}
	}
	if u, ok := canonicalUnits[relaxed]; ok {
		return NormalizedUnit{Original: raw, Unit: u, Confidence: 0.8}
	}

	return NormalizedUnit{Original: raw, Unit: model.UnitUnknown, Confidence: 0.3}
}

func cleanUnit(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".")
	return strings.Join(strings.Fields(s), " ")
}

func relaxUnit(cleaned string) string {
	var sb strings.Builder
	for _, r := range cleaned {
		switch r {
		case '.', '-', '/', ' ':
			continue
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
