package parser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
)

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:         attempts,
		InitialBackoff:      time.Millisecond,
		MaxBackoff:          2 * time.Millisecond,
		Multiplier:          1.5,
		RateLimitMultiplier: 2.0,
		JitterMax:           -1,
	}
}

func splitableChunk() model.Chunk {
	return model.Chunk{
		ID:     "abcdef123456-0001",
		Number: 1,
		Text:   "100mm collar\t4\tea\t45.00\n50mm collar\t2\tea\t38.00\nsealant bead\t12\tlm\t8.50\nbatt infill\t3\tm2\t120.00",
	}
}

func okResult(descriptions ...string) *model.ParserResult {
	items := make([]model.LineItem, len(descriptions))
	for i, d := range descriptions {
		items[i] = model.LineItem{Description: d, Quantity: 1, Unit: model.UnitEach}
	}
	return &model.ParserResult{Backend: "test", Items: items, Confidence: 0.9, Success: true}
}

func TestParseChunkWithRetry_FailuresThenSuccess(t *testing.T) {
	calls := 0
	fn := func(_ context.Context, _ model.Chunk) (*model.ParserResult, error) {
		calls++
		if calls < 3 {
			return nil, &resilience.TransientError{Err: errors.New("backend unavailable")}
		}
		return okResult("collar"), nil
	}

	outcome := ParseChunkWithRetry(context.Background(), fn, splitableChunk(), fastRetry(4))
	assert.Equal(t, model.ChunkOK, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Len(t, outcome.Items, 1)
	assert.InDelta(t, 0.9, outcome.Confidence, 1e-9)
}

func TestParseChunkWithRetry_PermanentErrorFailsFast(t *testing.T) {
	calls := 0
	fn := func(_ context.Context, _ model.Chunk) (*model.ParserResult, error) {
		calls++
		return nil, errors.New("malformed document")
	}

	outcome := ParseChunkWithRetry(context.Background(), fn, splitableChunk(), fastRetry(4))
	assert.Equal(t, model.ChunkFailed, outcome.Status)
	assert.Equal(t, 1, calls)
	assert.Contains(t, outcome.Error, "malformed document")
	assert.Zero(t, outcome.SplitDepth)
}

func TestParseChunkWithRetry_TimeoutSplitsExactlyOnce(t *testing.T) {
	callsByID := map[string]int{}
	fn := func(_ context.Context, chunk model.Chunk) (*model.ParserResult, error) {
		callsByID[chunk.ID]++
		return nil, context.DeadlineExceeded
	}

	chunk := splitableChunk()
	outcome := ParseChunkWithRetry(context.Background(), fn, chunk, fastRetry(2))

	assert.Equal(t, model.ChunkFailed, outcome.Status)
	assert.Equal(t, 1, outcome.SplitDepth)
	// Parent retried, then each half retried with the reduced budget.
	assert.Equal(t, 2, callsByID[chunk.ID])
	assert.Equal(t, 2, callsByID[chunk.ID+".1"])
	assert.Equal(t, 2, callsByID[chunk.ID+".2"])
	// No second-level split.
	assert.Len(t, callsByID, 3)
	assert.Equal(t, 6, outcome.Attempts)
}

func TestParseChunkWithRetry_SiblingSurvivesPartialFailure(t *testing.T) {
	fn := func(_ context.Context, chunk model.Chunk) (*model.ParserResult, error) {
		switch {
		case chunk.ID == "abcdef123456-0001.1":
			return okResult("collar a", "collar b"), nil
		default:
			return nil, context.DeadlineExceeded
		}
	}

	outcome := ParseChunkWithRetry(context.Background(), fn, splitableChunk(), fastRetry(2))
	assert.Equal(t, model.ChunkPartialFailure, outcome.Status)
	assert.Len(t, outcome.Items, 2)
	assert.Contains(t, outcome.Error, ".2")
	assert.InDelta(t, 0.9, outcome.Confidence, 1e-9)
}

func TestParseChunkWithRetry_BothHalvesRecover(t *testing.T) {
	fn := func(_ context.Context, chunk model.Chunk) (*model.ParserResult, error) {
		if chunk.ID == "abcdef123456-0001" {
			return nil, context.DeadlineExceeded
		}
		return okResult("item from " + chunk.ID), nil
	}

	outcome := ParseChunkWithRetry(context.Background(), fn, splitableChunk(), fastRetry(2))
	assert.Equal(t, model.ChunkOK, outcome.Status)
	assert.Len(t, outcome.Items, 2)
	assert.Equal(t, 1, outcome.SplitDepth)
}

func TestParseChunksParallel_ResultsInDocumentOrder(t *testing.T) {
	chunks := make([]model.Chunk, 6)
	for i := range chunks {
		chunks[i] = model.Chunk{ID: "c", Number: i + 1, Text: "a\nb"}
	}

	fn := func(_ context.Context, chunk model.Chunk) (*model.ParserResult, error) {
		// Later chunks finish first.
		time.Sleep(time.Duration(6-chunk.Number) * time.Millisecond)
		return okResult("x"), nil
	}

	var mu sync.Mutex
	progress := 0
	outcomes := ParseChunksParallel(context.Background(), fn, chunks, Options{
		Concurrency: 3,
		Retry:       fastRetry(2),
		Hooks: Hooks{
			OnProgress: func(done, total int) {
				mu.Lock()
				defer mu.Unlock()
				progress = done
				assert.Equal(t, 6, total)
			},
		},
	})

	require.Len(t, outcomes, 6)
	for i, o := range outcomes {
		assert.Equal(t, i+1, o.ChunkNumber)
		assert.Equal(t, model.ChunkOK, o.Status)
	}
	assert.Equal(t, 6, progress)
}

func TestParseChunksParallel_OneBadChunkIsIsolated(t *testing.T) {
	chunks := []model.Chunk{
		{ID: "c1", Number: 1, Text: "a\nb"},
		{ID: "c2", Number: 2, Text: "a\nb"},
		{ID: "c3", Number: 3, Text: "a\nb"},
	}
	fn := func(_ context.Context, chunk model.Chunk) (*model.ParserResult, error) {
		if chunk.Number == 2 {
			return nil, errors.New("garbage in chunk")
		}
		return okResult("x"), nil
	}

	var failed, completed []int
	var mu sync.Mutex
	outcomes := ParseChunksParallel(context.Background(), fn, chunks, Options{
		Retry: fastRetry(2),
		Hooks: Hooks{
			OnChunkComplete: func(o model.ChunkOutcome) {
				mu.Lock()
				completed = append(completed, o.ChunkNumber)
				mu.Unlock()
			},
			OnChunkFailed: func(o model.ChunkOutcome) {
				mu.Lock()
				failed = append(failed, o.ChunkNumber)
				mu.Unlock()
			},
		},
	})

	assert.Equal(t, model.ChunkOK, outcomes[0].Status)
	assert.Equal(t, model.ChunkFailed, outcomes[1].Status)
	assert.Equal(t, model.ChunkOK, outcomes[2].Status)
	assert.Equal(t, []int{2}, failed)
	assert.ElementsMatch(t, []int{1, 3}, completed)
}

func TestMergeOutcomes(t *testing.T) {
	outcomes := []model.ChunkOutcome{
		{ChunkNumber: 1, Status: model.ChunkOK, Confidence: 0.9, Items: []model.LineItem{
			{Description: "collar"}, {Description: "sealant"},
		}},
		{ChunkNumber: 2, Status: model.ChunkFailed, Error: "timed out"},
		{ChunkNumber: 3, Status: model.ChunkPartialFailure, Confidence: 0.7, Error: "half lost", Items: []model.LineItem{
			{Description: "batt"},
		}},
	}

	items, confidence, warnings := MergeOutcomes(outcomes)
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].SourceChunk)
	assert.Equal(t, 3, items[2].SourceChunk)
	// The two-item chunk carries twice the weight of the one-item chunk.
	assert.InDelta(t, (0.9*2+0.7)/3, confidence, 1e-9)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "chunk 2 failed")
}

func TestMergeOutcomesNumbersItemsInDocumentOrder(t *testing.T) {
	outcomes := []model.ChunkOutcome{
		{ChunkNumber: 1, Status: model.ChunkOK, Confidence: 0.9, Items: []model.LineItem{
			{Description: "collar"}, {Description: "sealant"},
		}},
		{ChunkNumber: 2, Status: model.ChunkOK, Confidence: 0.9, Items: []model.LineItem{
			{Description: "batt"},
		}},
	}

	items, _, _ := MergeOutcomes(outcomes)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i+1, item.Index)
	}
}

func TestMergeOutcomesEmptyChunksDoNotDiluteConfidence(t *testing.T) {
	outcomes := []model.ChunkOutcome{
		{ChunkNumber: 1, Status: model.ChunkOK, Confidence: 0.9, Items: []model.LineItem{
			{Description: "collar"},
		}},
		{ChunkNumber: 2, Status: model.ChunkOK, Confidence: 0.1},
	}

	_, confidence, _ := MergeOutcomes(outcomes)
	assert.InDelta(t, 0.9, confidence, 1e-9)
}
