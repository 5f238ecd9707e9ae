package parser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/quote-cli/internal/chunker"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
)

const (
	// DefaultConcurrency bounds how many chunks are in flight at once.
	DefaultConcurrency = 5

	// Sub-chunks produced by an adaptive split get a reduced budget.
	subChunkMaxAttempts   = 2
	subChunkTimeoutFactor = 0.7
)

// ParseChunkWithRetry parses one chunk with the given retry policy.
// If every attempt is exhausted and the terminal failure was a
// timeout, the chunk is split in two and each half is retried with a
// reduced budget. A half that still fails is recorded as a partial
// failure; its sibling's items are kept. Exactly one level of
// splitting is attempted.
func ParseChunkWithRetry(ctx context.Context, fn ParseFunc, chunk model.Chunk, cfg resilience.RetryConfig) model.ChunkOutcome {
	attempts := 0
	result, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.ParserResult, error) {
		attempts++
		return fn(ctx, chunk)
	})
	if err == nil {
		return model.ChunkOutcome{
			ChunkNumber: chunk.Number,
			Status:      model.ChunkOK,
			Items:       result.Items,
			Confidence:  result.Confidence,
			Attempts:    attempts,
		}
	}

	if !resilience.IsTimeout(err) || ctx.Err() != nil {
		return model.ChunkOutcome{
			ChunkNumber: chunk.Number,
			Status:      model.ChunkFailed,
			Attempts:    attempts,
			Error:       err.Error(),
		}
	}

	zap.L().Warn("chunk timed out after retries, splitting",
		zap.String("chunk_id", chunk.ID),
		zap.Int("attempts", attempts),
	)
	return parseSplit(ctx, fn, chunk, cfg, attempts, err)
}

// parseSplit retries a timed-out chunk as two smaller halves.
func parseSplit(ctx context.Context, fn ParseFunc, chunk model.Chunk, cfg resilience.RetryConfig, priorAttempts int, terminalErr error) model.ChunkOutcome {
	subs, splitErr := chunker.Split(chunk)
	if splitErr != nil {
		return model.ChunkOutcome{
			ChunkNumber: chunk.Number,
			Status:      model.ChunkFailed,
			Attempts:    priorAttempts,
			Error:       terminalErr.Error(),
		}
	}

	subCfg := cfg
	subCfg.MaxAttempts = subChunkMaxAttempts
	subCfg.AttemptTimeout = time.Duration(float64(cfg.AttemptTimeout) * subChunkTimeoutFactor)

	outcome := model.ChunkOutcome{
		ChunkNumber: chunk.Number,
		Attempts:    priorAttempts,
		SplitDepth:  1,
	}

	var failures []string
	var confSum float64
	succeeded := 0
	for _, sub := range subs {
		subAttempts := 0
		result, err := resilience.DoVal(ctx, subCfg, func(ctx context.Context) (*model.ParserResult, error) {
			subAttempts++
			return fn(ctx, sub)
		})
		outcome.Attempts += subAttempts
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sub.ID, err))
			continue
		}
		outcome.Items = append(outcome.Items, result.Items...)
		confSum += result.Confidence
		succeeded++
	}

	if succeeded > 0 {
		outcome.Confidence = confSum / float64(succeeded)
	}

	switch {
	case len(failures) == 0:
		outcome.Status = model.ChunkOK
	case succeeded > 0:
		outcome.Status = model.ChunkPartialFailure
		outcome.Error = strings.Join(failures, "; ")
	default:
		outcome.Status = model.ChunkFailed
		outcome.Error = strings.Join(failures, "; ")
	}
	return outcome
}

// Hooks receives progress callbacks during a parallel parse. All
// callbacks are invoked serially.
type Hooks struct {
	OnProgress      func(done, total int)
	OnChunkComplete func(outcome model.ChunkOutcome)
	OnChunkFailed   func(outcome model.ChunkOutcome)
}

// Options configures a parallel parse run.
type Options struct {
	Concurrency int
	Retry       resilience.RetryConfig
	Hooks       Hooks
}

// ParseChunksParallel parses all chunks with bounded concurrency and
// writes each outcome into its original index, so results stay in
// document order regardless of completion order. Failures are captured
// per chunk, never returned as an error.
func ParseChunksParallel(ctx context.Context, fn ParseFunc, chunks []model.Chunk, opts Options) []model.ChunkOutcome {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	outcomes := make([]model.ChunkOutcome, len(chunks))

	var mu sync.Mutex
	done := 0
	report := func(outcome model.ChunkOutcome) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if opts.Hooks.OnProgress != nil {
			opts.Hooks.OnProgress(done, len(chunks))
		}
		if outcome.Status == model.ChunkFailed {
			if opts.Hooks.OnChunkFailed != nil {
				opts.Hooks.OnChunkFailed(outcome)
			}
			return
		}
		if opts.Hooks.OnChunkComplete != nil {
			opts.Hooks.OnChunkComplete(outcome)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			outcome := ParseChunkWithRetry(ctx, fn, chunk, opts.Retry)
			outcomes[i] = outcome
			report(outcome)
			return nil
		})
	}
	// Workers never return errors; Wait just joins them.
	_ = g.Wait()

	return outcomes
}

// MergeOutcomes flattens ordered chunk outcomes into one item list,
// renumbering items by document order, and reports the document-level
// confidence as the item-weighted average of chunk confidences.
func MergeOutcomes(outcomes []model.ChunkOutcome) ([]model.LineItem, float64, []string) {
	var items []model.LineItem
	var warnings []string
	var confSum float64
	weighted := 0

	for _, o := range outcomes {
		switch o.Status {
		case model.ChunkFailed:
			warnings = append(warnings, fmt.Sprintf("chunk %d failed: %s", o.ChunkNumber, o.Error))
			continue
		case model.ChunkPartialFailure:
			warnings = append(warnings, fmt.Sprintf("chunk %d partially failed: %s", o.ChunkNumber, o.Error))
		}
		for _, item := range o.Items {
			item.SourceChunk = o.ChunkNumber
			item.Index = len(items) + 1
			items = append(items, item)
		}
		confSum += o.Confidence * float64(len(o.Items))
		weighted += len(o.Items)
	}

	confidence := 0.0
	if weighted > 0 {
		confidence = confSum / float64(weighted)
	}
	return items, confidence, warnings
}
