package model

// RiskSeverity grades how much commercial exposure a finding carries.
type RiskSeverity string

const (
	SeverityCritical RiskSeverity = "critical"
	SeverityHigh     RiskSeverity = "high"
	SeverityMedium   RiskSeverity = "medium"
	SeverityLow      RiskSeverity = "low"
)

// RiskCategory groups findings by the kind of exposure.
type RiskCategory string

const (
	RiskExclusion  RiskCategory = "exclusion"
	RiskAssumption RiskCategory = "assumption"
	RiskVague      RiskCategory = "vague"
	RiskPricing    RiskCategory = "pricing"
	RiskScope      RiskCategory = "scope"
	RiskTimeline   RiskCategory = "timeline"
	RiskQuality    RiskCategory = "quality"
	RiskAccess     RiskCategory = "access"
	RiskCompliance RiskCategory = "compliance"
)

// RiskOrigin says which part of the quote a finding came from.
type RiskOrigin string

const (
	OriginNarrative RiskOrigin = "narrative"
	OriginLineItem  RiskOrigin = "line_item"
)

// RiskFinding is one pattern match in quote text. Excerpt and Line
// describe the first match; Matches carries the text of every match up
// to a small cap.
type RiskFinding struct {
	PatternID      string       `json:"pattern_id"`
	Category       RiskCategory `json:"category"`
	Severity       RiskSeverity `json:"severity"`
	Origin         RiskOrigin   `json:"origin,omitempty"`
	Title          string       `json:"title"`
	Excerpt        string       `json:"excerpt"`
	Matches        []string     `json:"matches,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`
	Line           int          `json:"line,omitempty"`
}

// RiskCounts tallies findings by severity.
type RiskCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// RiskReport is the result of scanning one quote.
type RiskReport struct {
	Findings   []RiskFinding        `json:"findings"`
	Counts     RiskCounts           `json:"counts"`
	ByCategory map[RiskCategory]int `json:"by_category,omitempty"`
	Score      int                  `json:"score"`
}
