package rowfilter

import (
	"strconv"
	"strings"
)

// ParseMoney extracts a numeric value from a currency cell. It strips
// currency symbols, code prefixes, and grouping separators, handles
// European decimal-comma formats ("1.234,56"), NBSP padding, and
// treats parenthesized values as negative. Returns nil when the cell
// holds no parseable number.
func ParseMoney(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			sb.WriteRune(r)
		case r == ' ', r == '\u00a0', r == '$', r == '£', r == '€':
			// strip
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			// currency codes like "NZD", "excl GST" suffixes
		default:
			// strip anything else
		}
	}
	cleaned := sb.String()
	if cleaned == "" {
		return nil
	}

	cleaned = resolveSeparators(cleaned)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	if negative {
		v = -v
	}
	return &v
}

// resolveSeparators rewrites a digit string with mixed ',' and '.'
// into plain decimal-point form.
func resolveSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The later separator is the decimal mark; the other groups.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A single trailing comma with exactly two digits is a decimal
		// mark; anything else is grouping.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}

// ParseQuantity parses a quantity cell. Same lexing as ParseMoney but
// without the accounting-negative convention.
func ParseQuantity(raw string) *float64 {
	return ParseMoney(raw)
}
