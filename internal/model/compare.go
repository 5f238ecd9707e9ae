package model

// ComparisonRow pairs a line of work across two quotes by composite
// key. A nil amount means the side has no matching item; a nil
// variance means it could not be computed (missing side or zero
// average).
type ComparisonRow struct {
	Key         string   `json:"key"`
	Description string   `json:"description"`
	Unit        string   `json:"unit,omitempty"`
	Section     string   `json:"section,omitempty"`
	LeftQty     float64  `json:"left_qty,omitempty"`
	RightQty    float64  `json:"right_qty,omitempty"`
	LeftRate    *float64 `json:"left_rate,omitempty"`
	RightRate   *float64 `json:"right_rate,omitempty"`
	LeftAmount  *float64 `json:"left_amount,omitempty"`
	RightAmount *float64 `json:"right_amount,omitempty"`
	VariancePct *float64 `json:"variance_pct,omitempty"`
}

// ComparisonDiagnostics explains a comparison outcome, in particular
// why it may be empty. Reason is human-readable and always set.
type ComparisonDiagnostics struct {
	LeftCount        int      `json:"left_count"`
	RightCount       int      `json:"right_count"`
	LeftSections     []string `json:"left_sections,omitempty"`
	RightSections    []string `json:"right_sections,omitempty"`
	CommonSections   []string `json:"common_sections,omitempty"`
	IntersectionSize int      `json:"intersection_size"`
	PostFilterSize   int      `json:"post_filter_size"`
	Reason           string   `json:"reason"`
}

// Comparison is the full result of comparing two quotes.
type Comparison struct {
	LeftLabel   string                `json:"left_label"`
	RightLabel  string                `json:"right_label"`
	Rows        []ComparisonRow       `json:"rows"`
	Diagnostics ComparisonDiagnostics `json:"diagnostics"`
}
