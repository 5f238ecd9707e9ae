package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestMockClient_CreateMessage(t *testing.T) {
	mc := &MockClient{}
	ctx := context.Background()

	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 512,
		Messages:  []Message{{Role: "user", Content: "hello"}},
	}
	mc.On("CreateMessage", ctx, req).Return(&MessageResponse{
		ID:      "msg_001",
		Content: []ContentBlock{{Type: "text", Text: "hi"}},
		Usage:   TokenUsage{InputTokens: 10, OutputTokens: 2},
	}, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, "hi", resp.Content[0].Text)
	mc.AssertExpectations(t)
}

func TestMockClient_Error(t *testing.T) {
	mc := &MockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := mc.CreateMessage(context.Background(), MessageRequest{})
	assert.Error(t, err)
}

func TestEstimateCost_KnownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+2.00, cost, 1e-9)
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	u := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	cost := u.EstimateCost("claude-sonnet-4-5-20250929")
	// write at 1.25x input, read at 0.1x input
	assert.InDelta(t, 3.00*1.25+3.00*0.1, cost, 1e-9)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1000}
	assert.Equal(t, 0.0, u.EstimateCost("mystery-model"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	TokenUsage{InputTokens: 100, OutputTokens: 50}.LogCost("claude-haiku-4-5-20251001", "extract")
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("you extract line items")
	require.Len(t, blocks, 1)
	assert.Equal(t, "you extract line items", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestPrimerRequest(t *testing.T) {
	mc := &MockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&MessageResponse{ID: "msg_primer"}, nil)

	resp, err := PrimerRequest(context.Background(), mc, MessageRequest{
		Model:  "claude-haiku-4-5-20251001",
		System: BuildCachedSystemBlocks("primer"),
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_primer", resp.ID)
}
