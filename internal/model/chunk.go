package model

import "time"

// Manifest versions. Bump when the chunking scheme changes so stored
// manifests from older runs are not mistaken for current ones.
const (
	PDFChunkerVersion  = "pdf-chunker/v1"
	XLSXChunkerVersion = "xlsx-chunker/v1"
)

// Chunk quality assessments.
const (
	ChunkQualityGood   = "good"
	ChunkQualitySparse = "sparse"
)

// Chunk is a contiguous slice of a source document small enough to
// hand to an extraction backend in one call. Page bounds are set for
// PDF sources, row bounds for spreadsheet sources; both are 1-based
// and inclusive.
type Chunk struct {
	ID            string   `json:"chunk_id"`
	Number        int      `json:"chunk_number"`
	PageStart     int      `json:"start_page,omitempty"`
	PageEnd       int      `json:"end_page,omitempty"`
	RowStart      int      `json:"start_row,omitempty"`
	RowEnd        int      `json:"end_row,omitempty"`
	SheetName     string   `json:"sheet_name,omitempty"`
	Header        []string `json:"header,omitempty"`
	Text          string   `json:"-"`
	SHA256        string   `json:"sha256"`
	TokenEstimate int      `json:"token_estimate"`
	Quality       string   `json:"quality"`
}

// OriginalFile identifies the source document a manifest was built from.
type OriginalFile struct {
	FileName string `json:"file_name"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
}

// Manifest records how a source document was divided into chunks.
// Chunking the same bytes always yields the same boundaries and
// hashes, so a manifest can be used to detect re-submissions and to
// resume a partially parsed document.
type Manifest struct {
	Original    OriginalFile `json:"original"`
	Chunks      []Chunk      `json:"chunks"`
	TotalPages  int          `json:"total_pages,omitempty"`
	TotalSheets int          `json:"total_sheets,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Version     string       `json:"version"`
}
