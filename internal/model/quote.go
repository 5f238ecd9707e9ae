package model

import "time"

// Unit is the canonical unit of measure for a line item.
type Unit string

const (
	UnitEach        Unit = "ea"
	UnitLinearMeter Unit = "lm"
	UnitSquareMeter Unit = "m2"
	UnitMeter       Unit = "m"
	UnitUnknown     Unit = "unknown"
)

// DocumentType identifies the source format of a quote document.
type DocumentType string

const (
	DocumentPDF  DocumentType = "pdf"
	DocumentXLSX DocumentType = "xlsx"
	DocumentText DocumentType = "text"
)

// RawRow is a row as extracted from a source document, before
// classification and filtering. Numeric fields are pointers because a
// cell may be genuinely absent rather than zero.
type RawRow struct {
	Block       string   `json:"block,omitempty"`
	Section     string   `json:"section,omitempty"`
	Service     string   `json:"service,omitempty"`
	Description string   `json:"description"`
	Size        string   `json:"size,omitempty"`
	Substrate   string   `json:"substrate,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	Total       *float64 `json:"total,omitempty"`
	SourceRow   int      `json:"source_row,omitempty"`
}

// RowClass is the classification assigned to a RawRow.
type RowClass string

const (
	RowItem        RowClass = "item"
	RowTotal       RowClass = "total"
	RowHeader      RowClass = "header"
	RowExclusion   RowClass = "exclusion"
	RowContingency RowClass = "contingency"
	RowEmpty       RowClass = "empty"
)

// LineItem is a priced line of work in a supplier quote. Index is the
// item's 1-based position within its source document.
type LineItem struct {
	ID          string   `json:"id,omitempty"`
	Index       int      `json:"index,omitempty"`
	Section     string   `json:"section,omitempty"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	Unit        Unit     `json:"unit"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	TotalPrice  *float64 `json:"total_price,omitempty"`
	Code        string   `json:"code,omitempty"`
	Systems     []string `json:"systems,omitempty"`
	Size        string   `json:"size,omitempty"`
	FRRMinutes  int      `json:"frr_minutes,omitempty"`
	Substrate   string   `json:"substrate,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Negative    bool     `json:"negative,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	SourceChunk int      `json:"source_chunk,omitempty"`
}

// Amount returns the effective monetary value of the item: the stated
// total when present, otherwise quantity times unit price.
func (li LineItem) Amount() *float64 {
	if li.TotalPrice != nil {
		return li.TotalPrice
	}
	if li.UnitPrice != nil {
		v := li.Quantity * *li.UnitPrice
		return &v
	}
	return nil
}

// QuoteTotals summarizes the derived monetary totals of a quote.
type QuoteTotals struct {
	Penetrations float64 `json:"penetrations"`
	AddOns       float64 `json:"add_ons"`
	Grand        float64 `json:"grand"`
}

// ParsedQuote is the end product of ingesting one supplier document.
type ParsedQuote struct {
	ID           string       `json:"id"`
	SupplierName string       `json:"supplier_name"`
	FileName     string       `json:"file_name"`
	SourceSHA256 string       `json:"source_sha256"`
	DocumentType DocumentType `json:"document_type"`
	Items        []LineItem   `json:"items"`
	Totals       QuoteTotals  `json:"totals"`
	Confidence   float64      `json:"confidence"`
	Warnings     []string     `json:"warnings,omitempty"`
	Risks        *RiskReport  `json:"risks,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
