package risk

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/model"
)

const (
	excerptMaxLen        = 160
	matchesPerFindingCap = 3
)

// Scanner runs a pattern library over quote text.
type Scanner struct {
	patterns []Pattern
}

// NewScanner builds a Scanner from the given pattern library. Pass
// BuiltinPatterns() for the default set.
func NewScanner(patterns []Pattern) *Scanner {
	return &Scanner{patterns: patterns}
}

// Scan runs every pattern over the narrative text and returns a
// report. Each pattern contributes at most one finding so repeated
// boilerplate does not flood the score; the finding's excerpt and line
// come from the first match and Matches lists further hits up to a cap.
func (s *Scanner) Scan(text string) *model.RiskReport {
	return s.report(s.scanText(text))
}

// ScanQuote scans the narrative text and then the extracted line items.
// Patterns that already fired in the narrative are skipped on the item
// pass, since the narrative text contains the item rows too.
func (s *Scanner) ScanQuote(text string, items []model.LineItem) *model.RiskReport {
	findings := s.scanText(text)
	fired := make(map[string]bool, len(findings))
	for _, f := range findings {
		fired[f.PatternID] = true
	}
	findings = append(findings, s.scanItems(items, fired)...)
	return s.report(findings)
}

func (s *Scanner) scanText(text string) []model.RiskFinding {
	lines := strings.Split(text, "\n")
	var findings []model.RiskFinding

	for _, p := range s.patterns {
		var f *model.RiskFinding
		for i, line := range lines {
			if !p.re.MatchString(line) {
				continue
			}
			if f == nil {
				findings = append(findings, model.RiskFinding{
					PatternID:      p.ID,
					Category:       p.Category,
					Severity:       p.Severity,
					Origin:         model.OriginNarrative,
					Title:          p.Title,
					Excerpt:        excerpt(line),
					Recommendation: p.Recommendation,
					Line:           i + 1,
				})
				f = &findings[len(findings)-1]
			}
			if len(f.Matches) == matchesPerFindingCap {
				break
			}
			f.Matches = append(f.Matches, excerpt(line))
		}
	}
	return findings
}

// scanItems runs the patterns over line-item descriptions, skipping
// pattern IDs in fired. The finding's line is the item's 1-based index.
func (s *Scanner) scanItems(items []model.LineItem, fired map[string]bool) []model.RiskFinding {
	var findings []model.RiskFinding
	for _, p := range s.patterns {
		if fired[p.ID] {
			continue
		}
		var f *model.RiskFinding
		for _, item := range items {
			if !p.re.MatchString(item.Description) {
				continue
			}
			if f == nil {
				findings = append(findings, model.RiskFinding{
					PatternID:      p.ID,
					Category:       p.Category,
					Severity:       p.Severity,
					Origin:         model.OriginLineItem,
					Title:          p.Title,
					Excerpt:        excerpt(item.Description),
					Recommendation: p.Recommendation,
					Line:           item.Index,
				})
				f = &findings[len(findings)-1]
			}
			if len(f.Matches) == matchesPerFindingCap {
				break
			}
			f.Matches = append(f.Matches, excerpt(item.Description))
		}
	}
	return findings
}

func (s *Scanner) report(findings []model.RiskFinding) *model.RiskReport {
	if findings == nil {
		findings = []model.RiskFinding{}
	}
	report := &model.RiskReport{
		Findings:   findings,
		Counts:     countBySeverity(findings),
		ByCategory: countByCategory(findings),
	}
	report.Score = score(report.Counts)

	zap.L().Debug("risk scan complete",
		zap.Int("findings", len(report.Findings)),
		zap.Int("score", report.Score),
	)
	return report
}

func excerpt(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > excerptMaxLen {
		return line[:excerptMaxLen] + "…"
	}
	return line
}

func countBySeverity(findings []model.RiskFinding) model.RiskCounts {
	var c model.RiskCounts
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityCritical:
			c.Critical++
		case model.SeverityHigh:
			c.High++
		case model.SeverityMedium:
			c.Medium++
		case model.SeverityLow:
			c.Low++
		}
	}
	return c
}

func countByCategory(findings []model.RiskFinding) map[model.RiskCategory]int {
	if len(findings) == 0 {
		return nil
	}
	by := make(map[model.RiskCategory]int)
	for _, f := range findings {
		by[f.Category]++
	}
	return by
}

// score converts severity counts into a 0-100 confidence score. A clean
// quote scores 100; critical findings cost 10 points each, high 5,
// medium 2, low 1, floored at zero.
func score(c model.RiskCounts) int {
	penalty := c.Critical*10 + c.High*5 + c.Medium*2 + c.Low*1
	if penalty > 100 {
		penalty = 100
	}
	return 100 - penalty
}
