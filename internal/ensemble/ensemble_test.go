package ensemble

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/resilience"
)

type fakeBackend struct {
	name string
	fn   func(ctx context.Context, in parser.ParseInput) (*model.ParserResult, error)
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Parse(ctx context.Context, in parser.ParseInput) (*model.ParserResult, error) {
	return f.fn(ctx, in)
}

func ptr(v float64) *float64 { return &v }

func li(desc string, qty float64, unit model.Unit, rate float64) model.LineItem {
	return model.LineItem{Description: desc, Quantity: qty, Unit: unit, UnitPrice: ptr(rate)}
}

func nItems(n int) []model.LineItem {
	items := make([]model.LineItem, n)
	for i := range items {
		items[i] = model.LineItem{Description: "item", Quantity: float64(i + 1), Unit: model.UnitEach}
	}
	return items
}

func TestSelectBest_ScoreFormula(t *testing.T) {
	results := []model.ParserResult{
		{Backend: "a", Success: true, Confidence: 0.9, Items: nItems(10)},
		{Backend: "b", Success: true, Confidence: 0.8, Items: nItems(10)},
		{Backend: "c", Success: true, Confidence: 0.5, Items: nItems(11)},
	}

	assert.InDelta(t, 0.9*0.7+0.10*0.3, results[0].Score(), 1e-9)
	assert.InDelta(t, 0.5*0.7+0.11*0.3, results[2].Score(), 1e-9)

	best := SelectBest(results)
	assert.Equal(t, "a", best.Backend)
}

func TestSelectBest_ItemCountSaturates(t *testing.T) {
	r := model.ParserResult{Success: true, Confidence: 0.1, Items: nItems(500)}
	assert.InDelta(t, 0.1*0.7+0.3, r.Score(), 1e-9)
}

func TestSelectBest_IgnoresEmptySuccesses(t *testing.T) {
	results := []model.ParserResult{
		{Backend: "empty", Success: true, Confidence: 0.99, Items: nil},
		{Backend: "real", Success: true, Confidence: 0.4, Items: nItems(3)},
	}
	assert.Equal(t, "real", SelectBest(results).Backend)
}

func TestSelectBest_AllFailedPlaceholder(t *testing.T) {
	results := []model.ParserResult{
		{Backend: "a", Success: false, Error: "boom"},
		{Backend: "b", Success: false, Error: "bust"},
	}
	best := SelectBest(results)
	require.NotNil(t, best)
	assert.False(t, best.Success)
	assert.Zero(t, best.Confidence)
	assert.Empty(t, best.Items)
}

func TestBuildConsensus_AveragesAgreeingItems(t *testing.T) {
	results := []model.ParserResult{
		{Backend: "tableapi", Success: true, Confidence: 0.9, Items: []model.LineItem{
			li("Fire Collar 100mm", 4, model.UnitEach, 45.00),
		}},
		{Backend: "rules", Success: true, Confidence: 0.6, Items: []model.LineItem{
			li("fire collar 100MM", 4, model.UnitEach, 47.00),
		}},
	}

	consensus := BuildConsensus(results)
	require.Len(t, consensus, 1)

	c := consensus[0]
	assert.Equal(t, model.ConsensusAveraged, c.Method)
	assert.Equal(t, 2, c.AgreementCount)
	assert.ElementsMatch(t, []string{"tableapi", "rules"}, c.Sources)
	assert.InDelta(t, 46.00, *c.UnitPrice, 1e-9)
	// Structural template comes from the higher-confidence backend.
	assert.Equal(t, "Fire Collar 100mm", c.Description)
}

func TestBuildConsensus_DisagreementsStaySeparate(t *testing.T) {
	results := []model.ParserResult{
		{Backend: "a", Success: true, Items: []model.LineItem{li("collar", 4, model.UnitEach, 45)}},
		{Backend: "b", Success: true, Items: []model.LineItem{li("collar", 5, model.UnitEach, 45)}},
	}

	consensus := BuildConsensus(results)
	require.Len(t, consensus, 2)
	for _, c := range consensus {
		assert.Equal(t, model.ConsensusSingleSource, c.Method)
		assert.Equal(t, 1, c.AgreementCount)
	}
}

func TestBuildConsensus_SkipsFailedResults(t *testing.T) {
	results := []model.ParserResult{
		{Backend: "a", Success: false, Items: []model.LineItem{li("ghost", 1, model.UnitEach, 1)}},
		{Backend: "b", Success: true, Items: []model.LineItem{li("real", 1, model.UnitEach, 1)}},
	}
	consensus := BuildConsensus(results)
	require.Len(t, consensus, 1)
	assert.Equal(t, "real", consensus[0].Description)
}

func TestRun_BackendFailureIsIsolated(t *testing.T) {
	backends := []parser.Backend{
		&fakeBackend{name: "tableapi", fn: func(context.Context, parser.ParseInput) (*model.ParserResult, error) {
			return nil, errors.New("service down")
		}},
		&fakeBackend{name: "rules", fn: func(context.Context, parser.ParseInput) (*model.ParserResult, error) {
			return &model.ParserResult{Confidence: 0.6, Items: nItems(2)}, nil
		}},
	}

	out := Run(context.Background(), backends, parser.ParseInput{Text: "x"}, nil)
	require.Len(t, out.Results, 2)

	byName := map[string]model.ParserResult{}
	for _, r := range out.Results {
		byName[r.Backend] = r
	}
	assert.False(t, byName["tableapi"].Success)
	assert.Contains(t, byName["tableapi"].Error, "service down")
	assert.True(t, byName["rules"].Success)

	assert.Equal(t, model.RecommendModerate, out.Recommendation)
	require.NotNil(t, out.Best)
	assert.Equal(t, "rules", out.Best.Backend)
}

func TestRun_WithBreakers(t *testing.T) {
	backends := []parser.Backend{
		&fakeBackend{name: "rules", fn: func(context.Context, parser.ParseInput) (*model.ParserResult, error) {
			return &model.ParserResult{Confidence: 0.8, Items: nItems(1)}, nil
		}},
	}
	breakers := resilience.NewBackendBreakers(resilience.DefaultCircuitBreakerConfig())

	out := Run(context.Background(), backends, parser.ParseInput{Text: "x"}, breakers)
	assert.True(t, out.Results[0].Success)
	assert.Equal(t, resilience.CircuitClosed, breakers.Get("rules").State())
}

func TestAggregate_Recommendations(t *testing.T) {
	two := Aggregate([]model.ParserResult{
		{Backend: "a", Success: true, Items: nItems(1), Confidence: 0.5},
		{Backend: "b", Success: true, Items: nItems(1), Confidence: 0.5},
	})
	assert.Equal(t, model.RecommendHigh, two.Recommendation)

	none := Aggregate([]model.ParserResult{
		{Backend: "a", Success: false},
	})
	assert.Equal(t, model.RecommendLow, none.Recommendation)
	assert.Empty(t, none.Consensus)
}

func TestAggregate_AgreementRatio(t *testing.T) {
	out := Aggregate([]model.ParserResult{
		{Backend: "a", Success: true, Confidence: 0.9, Items: []model.LineItem{
			li("shared", 1, model.UnitEach, 10),
			li("only-a", 1, model.UnitEach, 5),
		}},
		{Backend: "b", Success: true, Confidence: 0.8, Items: []model.LineItem{
			li("shared", 1, model.UnitEach, 12),
		}},
	})
	// one agreed item out of two consensus rows
	assert.InDelta(t, 0.5, out.Agreement, 1e-9)
}
