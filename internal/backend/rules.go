package backend

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/rowfilter"
)

var (
	fieldSplitter = regexp.MustCompile(`\t+|\s{2,}`)
	unitToken     = regexp.MustCompile(`(?i)^(ea|each|no\.?|nr|lm|l/?m|m2|m²|sqm|sq\.?m|m|mtr|item|sum)$`)
	// A numeric cell is digits plus money punctuation only; "100mm" in a
	// description must not count.
	numericCell = regexp.MustCompile(`^\(?-?[$£€]?\s?[0-9][0-9.,\s]*\)?$`)
)

// Rules is the deterministic fallback backend: no network, no model,
// just column splitting over the tab-rendered chunk text. It catches
// well-structured schedules when the remote backends are down, and its
// output doubles as a sanity check in the ensemble.
type Rules struct{}

// NewRules returns the rule-based extraction backend.
func NewRules() *Rules { return &Rules{} }

func (r *Rules) Name() string { return "rules" }

func (r *Rules) Parse(_ context.Context, in parser.ParseInput) (*model.ParserResult, error) {
	lines := strings.Split(in.Text, "\n")

	var rows []model.RawRow
	nonEmpty := 0
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if row, ok := parseLine(line, i+1); ok {
			rows = append(rows, row)
		}
	}

	filtered := rowfilter.Filter(rows, rowfilter.Options{})

	// Confidence tracks how much of the chunk looked like tabular rows.
	confidence := 0.0
	if nonEmpty > 0 {
		confidence = 0.5 * float64(len(rows)) / float64(nonEmpty)
	}

	return &model.ParserResult{
		Items:      filtered.Items,
		Confidence: confidence,
	}, nil
}

// parseLine splits a line into columns and maps them to description,
// quantity, unit, rate, and total. Numeric columns are assigned in
// order: qty, rate, total; a lone trailing number is a total.
func parseLine(line string, lineNo int) (model.RawRow, bool) {
	fields := fieldSplitter.Split(line, -1)
	if len(fields) < 2 {
		return model.RawRow{}, false
	}

	row := model.RawRow{SourceRow: lineNo}
	var descParts []string
	var numerics []float64

	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if unitToken.MatchString(f) && row.Unit == "" {
			row.Unit = f
			continue
		}
		if numericCell.MatchString(f) {
			if v := rowfilter.ParseMoney(f); v != nil {
				numerics = append(numerics, *v)
				continue
			}
		}
		descParts = append(descParts, f)
	}

	row.Description = strings.Join(descParts, " ")
	if row.Description == "" || len(numerics) == 0 {
		return model.RawRow{}, false
	}

	switch len(numerics) {
	case 1:
		row.Total = &numerics[0]
	case 2:
		row.Quantity = &numerics[0]
		row.Rate = &numerics[1]
	default:
		row.Quantity = &numerics[0]
		row.Rate = &numerics[1]
		row.Total = &numerics[2]
	}
	return row, true
}
