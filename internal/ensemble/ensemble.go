// Package ensemble runs multiple extraction backends over the same
// text and merges their outputs into a consensus item list with a
// best-result fallback. One backend failing never aborts the others.
package ensemble

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/resilience"
)

// Run fans the input out to every backend in parallel, gated by each
// backend's circuit breaker, and aggregates whatever comes back. A
// backend that errors contributes a Success=false result instead of
// failing the run. Breakers may be nil.
func Run(ctx context.Context, backends []parser.Backend, in parser.ParseInput, breakers *resilience.BackendBreakers) *model.EnsembleResult {
	results := make([]model.ParserResult, len(backends))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			results[i] = runBackend(gctx, b, in, breakers)
			return nil
		})
	}
	_ = g.Wait()

	return Aggregate(results)
}

func runBackend(ctx context.Context, b parser.Backend, in parser.ParseInput, breakers *resilience.BackendBreakers) model.ParserResult {
	start := time.Now()

	call := func(ctx context.Context) (*model.ParserResult, error) {
		return b.Parse(ctx, in)
	}

	var result *model.ParserResult
	var err error
	if breakers != nil {
		result, err = resilience.ExecuteVal(ctx, breakers.Get(b.Name()), call)
	} else {
		result, err = call(ctx)
	}

	if err != nil {
		zap.L().Warn("extraction backend failed",
			zap.String("backend", b.Name()),
			zap.Error(err),
		)
		return model.ParserResult{
			Backend:  b.Name(),
			Items:    []model.LineItem{},
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	out := *result
	out.Backend = b.Name()
	out.Success = true
	out.Duration = time.Since(start)
	return out
}

// Aggregate builds the consensus view over a set of backend results.
func Aggregate(results []model.ParserResult) *model.EnsembleResult {
	consensus := BuildConsensus(results)

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	out := &model.EnsembleResult{
		Results:        results,
		Consensus:      consensus,
		Best:           SelectBest(results),
		Recommendation: recommendation(succeeded),
		Agreement:      agreementRatio(consensus),
	}

	zap.L().Debug("ensemble aggregated",
		zap.Int("backends", len(results)),
		zap.Int("succeeded", succeeded),
		zap.Int("consensus_items", len(consensus)),
		zap.String("recommendation", out.Recommendation),
	)
	return out
}

type member struct {
	item       model.LineItem
	backend    string
	confidence float64
}

// BuildConsensus groups items across backends by a case-insensitive
// description|quantity|unit key. Groups of one pass through as
// single-source; groups of two or more are merged by averaging the
// numeric fields, using the highest-confidence member for everything
// else.
func BuildConsensus(results []model.ParserResult) []model.ConsensusItem {
	var order []string
	groups := map[string][]member{}

	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, item := range r.Items {
			key := consensusKey(item)
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], member{item: item, backend: r.Backend, confidence: r.Confidence})
		}
	}

	consensus := make([]model.ConsensusItem, 0, len(order))
	for _, key := range order {
		members := groups[key]

		sources := make([]string, 0, len(members))
		for _, m := range members {
			sources = append(sources, m.backend)
		}

		if len(members) == 1 {
			consensus = append(consensus, model.ConsensusItem{
				LineItem:       members[0].item,
				Method:         model.ConsensusSingleSource,
				AgreementCount: 1,
				Sources:        sources,
			})
			continue
		}

		// Highest-confidence member is the structural template.
		best := members[0]
		for _, m := range members[1:] {
			if m.confidence > best.confidence {
				best = m
			}
		}

		merged := best.item
		var qtySum float64
		var unitPrices, totalPrices []*float64
		for _, m := range members {
			qtySum += m.item.Quantity
			unitPrices = append(unitPrices, m.item.UnitPrice)
			totalPrices = append(totalPrices, m.item.TotalPrice)
		}
		merged.Quantity = qtySum / float64(len(members))
		merged.UnitPrice = averageOptional(unitPrices)
		merged.TotalPrice = averageOptional(totalPrices)

		consensus = append(consensus, model.ConsensusItem{
			LineItem:       merged,
			Method:         model.ConsensusAveraged,
			AgreementCount: len(members),
			Sources:        sources,
		})
	}
	return consensus
}

func consensusKey(item model.LineItem) string {
	return normalize.Fold(item.Description) + "|" +
		strconv.FormatFloat(item.Quantity, 'f', 6, 64) + "|" +
		strings.ToLower(strings.TrimSpace(string(item.Unit)))
}

// averageOptional averages the non-nil values, nil when there are none.
func averageOptional(vals []*float64) *float64 {
	var sum float64
	n := 0
	for _, v := range vals {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// SelectBest returns the highest-scoring successful result with at
// least one item. When every backend failed, a zero-confidence empty
// placeholder is returned so callers always have a result to work with.
func SelectBest(results []model.ParserResult) *model.ParserResult {
	var best *model.ParserResult
	for i := range results {
		r := &results[i]
		if !r.Success || len(r.Items) == 0 {
			continue
		}
		if best == nil || r.Score() > best.Score() {
			best = r
		}
	}
	if best == nil {
		return &model.ParserResult{
			Backend:    "none",
			Items:      []model.LineItem{},
			Confidence: 0,
			Success:    false,
			Error:      "no extraction backend produced items",
		}
	}
	out := *best
	return &out
}

func recommendation(succeeded int) string {
	switch {
	case succeeded >= 2:
		return model.RecommendHigh
	case succeeded == 1:
		return model.RecommendModerate
	default:
		return model.RecommendLow
	}
}

// agreementRatio is the share of consensus items confirmed by more
// than one backend.
func agreementRatio(consensus []model.ConsensusItem) float64 {
	if len(consensus) == 0 {
		return 0
	}
	agreed := 0
	for _, c := range consensus {
		if c.AgreementCount >= 2 {
			agreed++
		}
	}
	return float64(agreed) / float64(len(consensus))
}
