package model

import "time"

// ParserResult is the normalized output of one extraction backend for
// one chunk of text. Backends that error still produce a result with
// Success=false so the ensemble can reason over the full set.
type ParserResult struct {
	Backend    string        `json:"backend"`
	Items      []LineItem    `json:"items"`
	Confidence float64       `json:"confidence"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
}

// Score ranks a result for best-of selection. Item count saturates at
// 100 so a sprawling low-confidence extraction cannot outrank a
// confident one.
func (r ParserResult) Score() float64 {
	n := float64(len(r.Items))
	if n > 100 {
		n = 100
	}
	return r.Confidence*0.7 + (n/100.0)*0.3
}

// Consensus methods.
const (
	ConsensusSingleSource = "single_source"
	ConsensusAveraged     = "multi_source_averaged"
)

// Ensemble recommendations, keyed off how many backends succeeded.
const (
	RecommendHigh     = "HIGH_CONFIDENCE_MULTI_PARSER"
	RecommendModerate = "MODERATE_CONFIDENCE_SINGLE_PARSER"
	RecommendLow      = "LOW_CONFIDENCE_MANUAL_REVIEW"
)

// ConsensusItem is a line item agreed between backends. Items reported
// by a single backend carry method "single_source"; items matched
// across two or more backends are averaged.
type ConsensusItem struct {
	LineItem
	Method         string   `json:"method"`
	AgreementCount int      `json:"agreement_count"`
	Sources        []string `json:"sources"`
}

// EnsembleResult aggregates all backend results for one chunk.
type EnsembleResult struct {
	Results        []ParserResult  `json:"results"`
	Consensus      []ConsensusItem `json:"consensus"`
	Best           *ParserResult   `json:"best,omitempty"`
	Recommendation string          `json:"recommendation"`
	Agreement      float64         `json:"agreement"`
}

// Chunk parse statuses.
const (
	ChunkOK             = "ok"
	ChunkPartialFailure = "partial_failure"
	ChunkFailed         = "failed"
)

// ChunkOutcome is the terminal state of parsing one chunk, including
// any adaptive sub-chunk splits performed along the way.
type ChunkOutcome struct {
	ChunkNumber int        `json:"chunk_number"`
	Status      string     `json:"status"`
	Items       []LineItem `json:"items"`
	Confidence  float64    `json:"confidence"`
	Attempts    int        `json:"attempts"`
	SplitDepth  int        `json:"split_depth,omitempty"`
	Error       string     `json:"error,omitempty"`
}
