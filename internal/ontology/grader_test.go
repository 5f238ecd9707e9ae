package ontology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/pkg/anthropic"
)

// cannedClient returns a fixed response for every CreateMessage call.
type cannedClient struct {
	text string
	err  error
}

func (c *cannedClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.text}},
	}, nil
}

func pipeInput(sizeMM int) GraderInput {
	entry, _ := ByCode("PE_PIPE_50_100")
	return GraderInput{
		Description: "fire seal to pipe penetration",
		SizeMM:      sizeMM,
		Candidates:  []Candidate{{Entry: entry, Score: 3}},
	}
}

func TestGrade_AcceptWithinTolerance(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{
		text: `{"match":"accept","confidence":95,"chosen_index":0}`,
	}, "claude-haiku-4-5-20251001")

	// 102mm against a 50-100mm band: 2mm out, inside accept tolerance.
	d, err := g.Grade(context.Background(), pipeInput(102))
	require.NoError(t, err)
	assert.Equal(t, VerdictAccept, d.Verdict)
	assert.Equal(t, 0, d.ChosenIndex)
}

func TestGrade_NearMissDowngradesToReview(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{
		text: `{"match":"accept","confidence":95,"chosen_index":0}`,
	}, "claude-haiku-4-5-20251001")

	// 104mm is 4mm outside the band: review regardless of the model.
	d, err := g.Grade(context.Background(), pipeInput(104))
	require.NoError(t, err)
	assert.Equal(t, VerdictReview, d.Verdict)
	assert.Contains(t, d.FieldDiffs, "size")
}

func TestGrade_FarMissRejected(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{
		text: `{"match":"accept","confidence":99,"chosen_index":0}`,
	}, "claude-haiku-4-5-20251001")

	// 110mm is 10mm outside the band: hard reject.
	d, err := g.Grade(context.Background(), pipeInput(110))
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
}

func TestGrade_LowConfidenceAcceptBecomesReview(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{
		text: `{"match":"accept","confidence":80,"chosen_index":0}`,
	}, "claude-haiku-4-5-20251001")

	d, err := g.Grade(context.Background(), pipeInput(75))
	require.NoError(t, err)
	assert.Equal(t, VerdictReview, d.Verdict)
}

func TestGrade_VeryLowConfidenceRejected(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{
		text: `{"match":"review","confidence":40,"chosen_index":0}`,
	}, "claude-haiku-4-5-20251001")

	d, err := g.Grade(context.Background(), pipeInput(75))
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
}

func TestGrade_FencedResponseParsed(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{
		text: "```json\n{\"match\":\"reject\",\"confidence\":10,\"chosen_index\":-1}\n```",
	}, "claude-haiku-4-5-20251001")

	d, err := g.Grade(context.Background(), pipeInput(75))
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, d.Verdict)
	assert.Equal(t, -1, d.ChosenIndex)
}

func TestGrade_MalformedResponse(t *testing.T) {
	g := NewAnthropicGrader(&cannedClient{text: "sorry, I cannot help"}, "m")
	_, err := g.Grade(context.Background(), pipeInput(75))
	assert.Error(t, err)
}

func TestParseDecision_UnknownVerdict(t *testing.T) {
	_, err := parseDecision(`{"match":"maybe","confidence":50}`)
	assert.Error(t, err)
}
