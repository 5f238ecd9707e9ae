package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/resilience"
)

// Resume re-drives the dead-lettered chunks of an already ingested
// document. Chunking is deterministic, so re-chunking the same bytes
// reproduces the chunk IDs the failures were recorded against. Chunks
// that succeed are folded into the stored quote in one item-set
// replacement; chunks that fail again have their retry bookkeeping
// advanced.
func (p *Pipeline) Resume(ctx context.Context, path string) (*model.ParsedQuote, error) {
	manifest, docType, err := p.chunk(path)
	if err != nil {
		return nil, err
	}

	quote, err := p.store.GetQuoteBySource(ctx, manifest.Original.SHA256)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load quote for resume")
	}
	if quote == nil {
		return nil, eris.Errorf("pipeline: document %s has not been ingested", manifest.Original.FileName)
	}
	log := zap.L().With(zap.String("quote_id", quote.ID), zap.String("file", manifest.Original.FileName))

	failures, err := p.store.ListFailedChunks(ctx, resilience.FailedChunkFilter{QuoteID: quote.ID})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list failed chunks")
	}

	byID := make(map[string]model.Chunk, len(manifest.Chunks))
	for _, c := range manifest.Chunks {
		byID[c.ID] = c
	}

	var retryable []resilience.FailedChunk
	var chunks []model.Chunk
	for _, fc := range failures {
		if !fc.CanRetry() {
			log.Warn("pipeline: chunk out of retries, skipping",
				zap.String("chunk_id", fc.ChunkID), zap.Int("retry_count", fc.RetryCount))
			continue
		}
		chunk, ok := byID[fc.ChunkID]
		if !ok {
			return nil, eris.Errorf("pipeline: chunk %s not found in manifest; document bytes changed", fc.ChunkID)
		}
		retryable = append(retryable, fc)
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		log.Info("pipeline: nothing to resume")
		return quote, nil
	}
	log.Info("pipeline: resuming failed chunks", zap.Int("chunks", len(chunks)))

	outcomes := p.parseChunks(ctx, chunks, quote.SupplierName, docType, log)

	newItems, newConfidence, warnings := parser.MergeOutcomes(outcomes)
	recovered := 0
	for i, o := range outcomes {
		fc := retryable[i]
		if o.Status == model.ChunkFailed {
			if markErr := p.store.MarkChunkRetry(ctx, fc.ID, time.Now().Add(retryHorizon).UTC()); markErr != nil {
				log.Warn("pipeline: failed to advance retry state", zap.String("chunk_id", fc.ChunkID), zap.Error(markErr))
			}
			continue
		}
		if resolveErr := p.store.ResolveFailedChunk(ctx, fc.ID); resolveErr != nil {
			log.Warn("pipeline: failed to resolve chunk", zap.String("chunk_id", fc.ChunkID), zap.Error(resolveErr))
		}
		recovered++
	}
	if len(newItems) == 0 {
		log.Info("pipeline: resume recovered no items")
		return quote, nil
	}

	newItems, mapWarnings := p.mapItems(ctx, newItems)
	warnings = append(warnings, mapWarnings...)

	items := append(quote.Items, newItems...)
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].SourceChunk < items[b].SourceChunk
	})
	for i := range items {
		items[i].Index = i + 1
	}

	totals, totalWarnings := ComputeTotals(items)
	warnings = append(warnings, totalWarnings...)

	// Blend in the recovered chunks' confidence in proportion to how
	// much of the item set they contributed.
	confidence := quote.Confidence
	if newConfidence > 0 {
		weight := float64(len(newItems)) / float64(len(items))
		confidence = quote.Confidence*(1-weight) + newConfidence*weight
	}

	if err := p.store.ReplaceQuoteItems(ctx, quote.ID, items); err != nil {
		return nil, eris.Wrap(err, "pipeline: replace quote items")
	}
	if err := p.store.UpdateQuoteSummary(ctx, quote.ID, totals, confidence, append(quote.Warnings, warnings...)); err != nil {
		return nil, eris.Wrap(err, "pipeline: update quote summary")
	}

	log.Info("pipeline: resume complete",
		zap.Int("recovered_chunks", recovered),
		zap.Int("new_items", len(newItems)),
		zap.Float64("grand_total", totals.Grand),
	)
	return p.store.GetQuote(ctx, quote.ID)
}
