package resilience

import (
	"time"
)

// FailedChunk records a document chunk that exhausted its retry budget
// so a later ingest run can pick it back up.
type FailedChunk struct {
	ID           string    `json:"id"`
	QuoteID      string    `json:"quote_id"`
	SourceSHA256 string    `json:"source_sha256"`
	ChunkID      string    `json:"chunk_id"`
	ChunkNumber  int       `json:"chunk_number"`
	Backend      string    `json:"backend,omitempty"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// FailedChunkFilter specifies criteria for querying stored failures.
type FailedChunkFilter struct {
	QuoteID   string `json:"quote_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this chunk hasn't exceeded its max retry count.
func (f *FailedChunk) CanRetry() bool {
	return f.RetryCount < f.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
// Only transient failures are worth re-driving on resume.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
