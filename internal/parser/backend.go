// Package parser orchestrates resilient chunk parsing: retry with
// backoff, adaptive re-splitting of chunks that keep timing out, and
// bounded parallel fan-out across a document's chunks. One corrupt or
// oversized chunk never blocks or fails the rest of the document.
package parser

import (
	"context"

	"github.com/sells-group/quote-cli/internal/model"
)

// ParseInput is the payload handed to an extraction backend for one
// chunk of a supplier document.
type ParseInput struct {
	Text         string
	SupplierName string
	DocumentType model.DocumentType
	Chunk        model.Chunk
}

// Backend is one extraction strategy. Implementations live in
// internal/backend; they must be safe for concurrent use.
type Backend interface {
	Name() string
	Parse(ctx context.Context, in ParseInput) (*model.ParserResult, error)
}

// ParseFunc parses one chunk. The pipeline passes a closure that runs
// the full backend ensemble; tests pass whatever they need.
type ParseFunc func(ctx context.Context, chunk model.Chunk) (*model.ParserResult, error)
