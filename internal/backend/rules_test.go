package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
)

func TestRules_ParsesTabularChunk(t *testing.T) {
	text := "Description\tQty\tUnit\tRate\tTotal\n" +
		"100mm fire collar to PVC pipe\t4\tea\t45.00\t180.00\n" +
		"Intumescent sealant bead\t12\tlm\t8.50\n" +
		"Subtotal\t282.00\n"

	r := NewRules()
	result, err := r.Parse(context.Background(), parser.ParseInput{Text: text, Chunk: model.Chunk{Number: 1}})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	collar := result.Items[0]
	assert.Equal(t, "100mm fire collar to PVC pipe", collar.Description)
	assert.Equal(t, 4.0, collar.Quantity)
	assert.Equal(t, model.UnitEach, collar.Unit)
	require.NotNil(t, collar.UnitPrice)
	assert.Equal(t, 45.0, *collar.UnitPrice)
	require.NotNil(t, collar.TotalPrice)
	assert.Equal(t, 180.0, *collar.TotalPrice)

	sealant := result.Items[1]
	assert.Equal(t, 12.0, sealant.Quantity)
	assert.Equal(t, model.UnitLinearMeter, sealant.Unit)
	// qty + rate only: total derived during reconciliation
	require.NotNil(t, sealant.TotalPrice)
	assert.InDelta(t, 102.0, *sealant.TotalPrice, 1e-9)
}

func TestRules_SizeInDescriptionIsNotNumeric(t *testing.T) {
	r := NewRules()
	result, err := r.Parse(context.Background(), parser.ParseInput{
		Text: "150mm collar 60min FRR\t2\tea\t52.00",
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "150mm collar 60min FRR", result.Items[0].Description)
	assert.Equal(t, 2.0, result.Items[0].Quantity)
}

func TestRules_MoneyFormats(t *testing.T) {
	r := NewRules()
	result, err := r.Parse(context.Background(), parser.ParseInput{
		Text: "Fire damper supply\t2\tea\t$1,234.56",
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.NotNil(t, result.Items[0].UnitPrice)
	assert.InDelta(t, 1234.56, *result.Items[0].UnitPrice, 1e-9)
}

func TestRules_ProseYieldsNothing(t *testing.T) {
	r := NewRules()
	result, err := r.Parse(context.Background(), parser.ParseInput{
		Text: "Please find attached our quotation for the above project.\nWe trust this meets your requirements.",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Zero(t, result.Confidence)
}

func TestRules_ConfidenceTracksHitRatio(t *testing.T) {
	r := NewRules()
	// two of four lines parse
	result, err := r.Parse(context.Background(), parser.ParseInput{
		Text: "Some narrative line here\nAnother narrative line\ncollar A\t1\tea\t10.00\ncollar B\t2\tea\t20.00",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, result.Confidence, 1e-9)
	assert.Len(t, result.Items, 2)
}
