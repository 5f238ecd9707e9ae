package store

import (
	"context"
	"time"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
)

// QuoteFilter specifies criteria for listing quotes.
type QuoteFilter struct {
	SupplierName string `json:"supplier_name,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Quotes
	CreateQuote(ctx context.Context, q *model.ParsedQuote) error
	GetQuote(ctx context.Context, id string) (*model.ParsedQuote, error)
	GetQuoteBySource(ctx context.Context, sourceSHA256 string) (*model.ParsedQuote, error)
	ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.ParsedQuote, error)
	DeleteQuote(ctx context.Context, id string) error

	// ReplaceQuoteItems swaps a quote's item set in one transaction so
	// a resume racing a fresh parse can never double-count.
	ReplaceQuoteItems(ctx context.Context, quoteID string, items []model.LineItem) error
	UpdateQuoteSummary(ctx context.Context, quoteID string, totals model.QuoteTotals, confidence float64, warnings []string) error
	UpdateQuoteRisks(ctx context.Context, quoteID string, risks *model.RiskReport) error

	// Chunk manifests, keyed by source document hash for idempotent
	// re-submission detection.
	SaveManifest(ctx context.Context, quoteID string, m *model.Manifest) error
	GetManifest(ctx context.Context, sourceSHA256 string) (*model.Manifest, error)

	// Dead-letter queue for chunks that exhausted their retry budget.
	EnqueueFailedChunk(ctx context.Context, fc resilience.FailedChunk) (*resilience.FailedChunk, error)
	ListFailedChunks(ctx context.Context, filter resilience.FailedChunkFilter) ([]resilience.FailedChunk, error)
	MarkChunkRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	ResolveFailedChunk(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
