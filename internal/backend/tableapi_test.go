package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/resilience"
	"github.com/sells-group/quote-cli/pkg/tableapi"
)

type fakeTableClient struct {
	fn func(ctx context.Context, req tableapi.ExtractRequest) (*tableapi.ExtractResponse, error)
}

func (f *fakeTableClient) Extract(ctx context.Context, req tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
	return f.fn(ctx, req)
}

func fptr(v float64) *float64 { return &v }

func TestTableAPI_Parse(t *testing.T) {
	client := &fakeTableClient{fn: func(_ context.Context, req tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
		assert.Equal(t, "Alpha Fire", req.SupplierName)
		require.NotNil(t, req.ChunkInfo)
		assert.Equal(t, "abc-0001", req.ChunkInfo.ChunkID)
		return &tableapi.ExtractResponse{
			Items: []tableapi.Item{
				{Description: "100mm fire collar", Unit: "ea", Quantity: fptr(4), Rate: fptr(45)},
				{Description: "SUBTOTAL", Total: fptr(180)},
			},
			Confidence: fptr(0.91),
		}, nil
	}}

	b := NewTableAPI(client)
	assert.Equal(t, "tableapi", b.Name())

	result, err := b.Parse(context.Background(), parser.ParseInput{
		Text:         "whatever",
		SupplierName: "Alpha Fire",
		DocumentType: model.DocumentPDF,
		Chunk:        model.Chunk{ID: "abc-0001", Number: 1},
	})
	require.NoError(t, err)
	// subtotal row filtered out
	require.Len(t, result.Items, 1)
	assert.Equal(t, "100mm fire collar", result.Items[0].Description)
	assert.InDelta(t, 0.91, result.Confidence, 1e-9)
}

func TestTableAPI_DefaultConfidence(t *testing.T) {
	client := &fakeTableClient{fn: func(context.Context, tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
		return &tableapi.ExtractResponse{Lines: []tableapi.Item{{Description: "x", Total: fptr(1)}}}, nil
	}}
	result, err := NewTableAPI(client).Parse(context.Background(), parser.ParseInput{})
	require.NoError(t, err)
	assert.InDelta(t, tableAPIDefaultConfidence, result.Confidence, 1e-9)
}

func TestTableAPI_TransientStatusIsRetryable(t *testing.T) {
	client := &fakeTableClient{fn: func(context.Context, tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
		return nil, &tableapi.APIError{StatusCode: 503, Body: "maintenance"}
	}}
	_, err := NewTableAPI(client).Parse(context.Background(), parser.ParseInput{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestTableAPI_RateLimitClassified(t *testing.T) {
	client := &fakeTableClient{fn: func(context.Context, tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
		return nil, &tableapi.APIError{StatusCode: 429, Body: "slow down"}
	}}
	_, err := NewTableAPI(client).Parse(context.Background(), parser.ParseInput{})
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimit(err))
}

func TestTableAPI_ClientErrorIsPermanent(t *testing.T) {
	client := &fakeTableClient{fn: func(context.Context, tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
		return nil, &tableapi.APIError{StatusCode: 400, Body: "bad request"}
	}}
	_, err := NewTableAPI(client).Parse(context.Background(), parser.ParseInput{})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestTableAPI_ServiceErrorField(t *testing.T) {
	client := &fakeTableClient{fn: func(context.Context, tableapi.ExtractRequest) (*tableapi.ExtractResponse, error) {
		return &tableapi.ExtractResponse{Error: "table too wide"}, nil
	}}
	_, err := NewTableAPI(client).Parse(context.Background(), parser.ParseInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table too wide")
}
