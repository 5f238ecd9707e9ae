package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/pkg/anthropic"
)

// Verdict is the grader's judgement on a proposed catalog match.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReview Verdict = "review"
	VerdictReject Verdict = "reject"
)

// Size tolerance bands in millimetres. Within acceptTolerance a size
// difference never blocks a match; between acceptTolerance and
// reviewTolerance the match needs human review; beyond that it is
// rejected outright regardless of what the grader said.
const (
	acceptToleranceMM = 2
	reviewToleranceMM = 5
)

// Confidence thresholds applied to the grader's self-reported score.
const (
	acceptConfidence = 90
	reviewConfidence = 70
)

// GraderInput is one line description with its lexical candidates.
type GraderInput struct {
	Description string      `json:"description"`
	Unit        string      `json:"unit,omitempty"`
	SizeMM      int         `json:"size_mm,omitempty"`
	FRRMinutes  int         `json:"frr_minutes,omitempty"`
	Candidates  []Candidate `json:"candidates"`
}

// GraderDecision is the grader's structured answer.
type GraderDecision struct {
	Verdict     Verdict           `json:"match"`
	Confidence  int               `json:"confidence"`
	ChosenIndex int               `json:"chosen_index"`
	FieldDiffs  map[string]string `json:"field_diffs,omitempty"`
	Rationale   string            `json:"rationale,omitempty"`
}

// Grader decides whether a candidate list contains a true match for a
// description the lexical scorer was unsure about.
type Grader interface {
	Grade(ctx context.Context, input GraderInput) (*GraderDecision, error)
}

// AnthropicGrader grades matches with a single model call.
type AnthropicGrader struct {
	client anthropic.Client
	model  string
}

// NewAnthropicGrader wires a grader to an Anthropic client.
func NewAnthropicGrader(client anthropic.Client, model string) *AnthropicGrader {
	return &AnthropicGrader{client: client, model: model}
}

const graderSystemPrompt = `You grade proposed matches between construction quote line items and a passive fire protection catalog.

Given a line description and candidate catalog entries, decide whether one candidate is the correct system.

Size tolerance rules (millimetres):
- difference of 2mm or less: may accept
- difference of 3-5mm: at best "review"
- difference greater than 5mm: must reject

Respond with only a JSON object:
{"match": "accept"|"review"|"reject", "confidence": 0-100, "chosen_index": <index into candidates, or -1>, "field_diffs": {"<field>": "<difference>"}, "rationale": "<one sentence>"}`

func (g *AnthropicGrader) Grade(ctx context.Context, input GraderInput) (*GraderDecision, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "ontology: marshal grader input")
	}

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: 1024,
		System:    []anthropic.SystemBlock{{Text: graderSystemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ontology: grade match")
	}
	resp.Usage.LogCost(g.model, "ontology_grade")

	decision, err := parseDecision(responseText(resp))
	if err != nil {
		return nil, err
	}

	applyTolerance(decision, input)
	finalize(decision)

	zap.L().Debug("graded match",
		zap.String("description", input.Description),
		zap.String("verdict", string(decision.Verdict)),
		zap.Int("confidence", decision.Confidence),
		zap.Int("chosen_index", decision.ChosenIndex),
	)
	return decision, nil
}

func responseText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func parseDecision(text string) (*GraderDecision, error) {
	cleaned := stripFences(text)
	var d GraderDecision
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return nil, eris.Wrapf(err, "ontology: parse grader response %q", truncate(cleaned, 120))
	}
	switch d.Verdict {
	case VerdictAccept, VerdictReview, VerdictReject:
	default:
		return nil, eris.Errorf("ontology: grader returned unknown verdict %q", d.Verdict)
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 100 {
		d.Confidence = 100
	}
	return &d, nil
}

// applyTolerance enforces the size rules deterministically on top of
// whatever the model answered.
func applyTolerance(d *GraderDecision, input GraderInput) {
	if d.ChosenIndex < 0 || d.ChosenIndex >= len(input.Candidates) || input.SizeMM == 0 {
		return
	}
	entry := input.Candidates[d.ChosenIndex].Entry
	if entry.SizeMinMM == 0 && entry.SizeMaxMM == 0 {
		return
	}

	diff := sizeDistance(input.SizeMM, entry.SizeMinMM, entry.SizeMaxMM)
	switch {
	case diff > reviewToleranceMM:
		d.Verdict = VerdictReject
		setDiff(d, "size", fmt.Sprintf("%dmm outside band %d-%dmm", input.SizeMM, entry.SizeMinMM, entry.SizeMaxMM))
	case diff > acceptToleranceMM && d.Verdict == VerdictAccept:
		d.Verdict = VerdictReview
		setDiff(d, "size", fmt.Sprintf("%dmm is %dmm outside band %d-%dmm", input.SizeMM, diff, entry.SizeMinMM, entry.SizeMaxMM))
	}
}

// finalize downgrades verdicts whose confidence does not support them.
func finalize(d *GraderDecision) {
	switch {
	case d.Verdict == VerdictAccept && d.Confidence < acceptConfidence:
		d.Verdict = VerdictReview
	case d.Verdict == VerdictReview && d.Confidence < reviewConfidence:
		d.Verdict = VerdictReject
	}
}

// sizeDistance is how far size falls outside [min, max]; zero inside.
func sizeDistance(size, min, max int) int {
	if size < min {
		return min - size
	}
	if size > max {
		return size - max
	}
	return 0
}

func setDiff(d *GraderDecision, field, value string) {
	if d.FieldDiffs == nil {
		d.FieldDiffs = make(map[string]string)
	}
	d.FieldDiffs[field] = value
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
